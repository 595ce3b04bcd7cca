// Package transport implements the tap's Transport Adapters.
//
// A Transport owns one streaming connection to the Hop server's tap endpoint
// and reports its lifecycle through State (Connecting, Open, Closing, Closed,
// numbered like the browser readyState) and through an ordered stream of
// Events pushed to the channel given to its DialFunc:
//
//   - EventOpen once the server has sent the self id (the first message)
//   - EventMessage for every later inbound message
//   - EventClose exactly once, on failure or after Close; transport errors
//     and orderly closes both end up here
//
// The close event is queued before the state reads Closed, so a consumer
// that polls State always handles a transport's close first.
//
// Two interchangeable adapters exist:
//
//   - WebSocket (gorilla/websocket): frames are sent as {"data": "<frame>"}
//     text messages; ping/pong keeps the connection alive.
//   - HTTP stream: GET streams newline-delimited messages; each send is a
//     form POST with metadata.id, metadata.type=send and data=<frame>.
//
// New(cfg) picks one from config.TapConfig.
package transport
