// Package api implements the HTTP REST API for hopdash.
//
// New(store) returns an http.Handler that serves:
//
//	GET /api/v1/status           tap connection state, self id, server_ok
//	GET /api/v1/stats            latest server stats; null fields while unavailable
//	GET /api/v1/nodes            node names per class, sorted
//	GET /api/v1/nodes/{class}    one class; 404 if unknown
//	GET /api/v1/log?limit=N      raw inbound frames, oldest first
//	GET /api/v1/snapshot         connection, stats and nodes in one consistent read
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for non-GET methods
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
