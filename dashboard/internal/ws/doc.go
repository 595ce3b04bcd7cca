// Package ws implements the WebSocket hub for hopdash.
//
// Hub keeps a set of connected browser clients. It broadcasts the dashboard
// snapshot to all of them on a configurable interval (default 5s) and on
// demand through Notify, and relays single events through Publish.
//
// Message format sent to clients:
//
//	{"event": "snapshot", "data": { /* same schema as GET /api/v1/snapshot */ }}
//	{"event": "frame",    "data": { "received_at": "...", "frame": [...] }}
//
// Each client gets a random id used only in logs. The upgrader accepts all
// origins. The endpoint is mounted at /ws/stream by the binary.
package ws
