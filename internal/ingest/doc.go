// Package ingest is the reading-merge and idempotent-ingestion engine.
//
// An inbound batch flows through four steps:
//
//  1. ParseRequest: the body must be a non-empty JSON object
//  2. Validator: the id must be UUID-shaped and readings a non-empty array,
//     then the exact request bytes are fingerprinted and recorded; a
//     fingerprint seen before rejects the batch as a duplicate
//  3. Engine.MergeBatch: under a per-device lock, load the aggregate, Fold
//     the batch into it and save the result
//  4. Notifiers observe the merged aggregate (WebSocket, MQTT, InfluxDB)
//     before the device lock is released
//
// Service ties these together; Query serves reads straight from the device
// repository.
//
// Malformed readings inside an otherwise valid batch are dropped, not
// rejected; so is a reading whose count would overflow the device total. FoldStats reports how many were dropped so callers can log and
// count them.
package ingest
