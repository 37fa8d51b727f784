// Package relay connects the ingestion service to the message bus and the
// time-series export.
//
// MQTTBridge accepts request bodies published on readingd/ingest, runs them
// through the same pipeline as POST /api/devices, and reports rejections on
// readingd/ingest/rejected. As an ingest.Notifier it also republishes every
// merged aggregate, retained, on readingd/device/{id}.
//
// InfluxExporter is an ingest.Notifier that writes the readings accepted by
// each merge to InfluxDB.
package relay
