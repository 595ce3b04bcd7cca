// Package frame implements the Hop tap wire codec.
//
// A Frame is one of Post, Subscribe, Unsubscribe or Create. On the wire every
// frame is a JSON array with its tag first:
//
//	["post", target, datum, token]
//	["post", source, ["subscribe", filter, sink, name, reply_sink, reply_name], ""]
//	["post", source, ["unsubscribe", token], ""]
//	["post", factory, ["create", class, arg, reply_sink, reply_name], ""]
//
// Subscribe, Unsubscribe and Create are requests addressed to an endpoint, so
// they travel as the datum of a post to that endpoint. Empty optional fields
// are always written as "" and may be omitted or null on input.
//
// A post with an empty token whose datum is a well-formed request array is
// indistinguishable on the wire from that request, so Decode returns the
// request. Encoding Post{Target: "x", Datum: ["unsubscribe","t"]} therefore
// decodes as Unsubscribe{Source: "x", Token: "t"}. A request-shaped datum
// that does not parse as a request decodes as a plain Post.
//
// Decode rejects anything whose leading tag is not post, subscribe,
// unsubscribe or create. The returned error is a *DecodeError wrapping
// ErrUnknownTag or ErrMalformed.
package frame
