// Package state holds the dashboard's in-memory view of the Hop server: tap
// connection status, the latest stats reading, the node registry and a
// bounded ring of raw inbound frames for debugging.
package state
