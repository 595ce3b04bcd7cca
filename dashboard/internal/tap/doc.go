// Package tap is the client side of a Hop tap session.
//
// A Client owns the current transport, a hook Registry and a supervisor.
// Transports push their events onto one queue; Run drains it together with
// the supervisor ticker, so open, message and close hooks never run
// concurrently and always see one transport's events in order.
//
// The supervisor polls the transport state every check interval. When it
// finds the transport Closed it dials exactly one replacement, which shares
// the same hooks, so the open hooks run again on every reconnect. A
// transport reports its close event before it reads as Closed, so close
// hooks for the old connection always run before open hooks for the new one.
//
// Sends (Post, Subscribe, Unsubscribe, Create) are fire-and-forget and are
// dropped while the transport is not open.
package tap
