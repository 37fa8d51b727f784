// Package api provides the HTTP API and WebSocket stream for readingd.
//
// Routes:
//
//	GET  /api/health                  liveness and dependency checks
//	GET  /api/devices                 every device aggregate, first-seen order
//	POST /api/devices                 ingest a batch {id, readings}
//	GET  /api/devices/stream          WebSocket feed of device.updated events
//	GET  /api/devices/{id}            one aggregate, or {} when unknown
//	GET  /api/devices/{id}/count      {count}, or {} when unknown
//	GET  /api/devices/{id}/latest     latest reading, or {} when unknown
//	GET  /metrics                     Prometheus exposition
//
// Errors are returned as {"error": "<message>"}. Rejected batches get 400
// with one of "Invalid request", "Invalid id", "Invalid readings" or
// "Duplicate request"; storage failures get 500 "Internal error".
//
// Stream clients follow every device unless connected with ?device=<id>.
// They may send {"type":"follow"|"unfollow","data":{"all":bool,"devices":[...]}}
// and {"type":"ping"}; updates arrive as {"type":"event","event":"device.updated"}.
//
// The server follows the same lifecycle as the infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
