package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownTag is returned when a frame's leading tag is not one of
	// post, subscribe, unsubscribe or create.
	ErrUnknownTag = errors.New("unknown frame tag")

	// ErrMalformed is returned for input that is not a tagged JSON array
	// with the fields its tag requires.
	ErrMalformed = errors.New("malformed frame")
)

// DecodeError describes a frame that could not be decoded.
type DecodeError struct {
	// Tag is the leading tag of the offending frame, if it had one.
	Tag string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Tag == "" {
		return "frame: decode: " + e.Err.Error()
	}
	return fmt.Sprintf("frame: decode %q: %v", e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Envelope is the outbound wire message wrapping one encoded frame.
type Envelope struct {
	Data string `json:"data"`
}

// WireMessage wraps an encoded frame in the outbound {"data": ...} envelope.
func WireMessage(encoded []byte) ([]byte, error) {
	return json.Marshal(Envelope{Data: string(encoded)})
}

// Encode serializes f to its JSON array form.
func Encode(f Frame) ([]byte, error) {
	var arr []any
	switch f := f.(type) {
	case Post:
		arr = []any{TagPost, f.Target, rawOrNull(f.Datum), f.Token}
	case Subscribe:
		arr = request(f.Source, []any{TagSubscribe, f.Filter, f.Sink, f.Name, f.ReplySink, f.ReplyName})
	case Unsubscribe:
		arr = request(f.Source, []any{TagUnsubscribe, f.Token})
	case Create:
		arr = request(f.Factory, []any{TagCreate, f.ClassName, rawOrNull(f.Arg), f.ReplySink, f.ReplyName})
	default:
		return nil, fmt.Errorf("frame: encode: unsupported frame %T", f)
	}
	b, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("frame: encode %s: %w", f.Tag(), err)
	}
	return b, nil
}

// request wraps an inner request array as the datum of an uncorrelated post.
func request(target string, inner []any) []any {
	return []any{TagPost, target, inner, ""}
}

func rawOrNull(r json.RawMessage) json.RawMessage {
	if len(r) == 0 {
		return json.RawMessage("null")
	}
	return r
}

// Decode parses one wire frame.
func Decode(data []byte) (Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, malformed("", err)
	}
	return decodeParts(parts, "")
}

// decodeParts decodes a tagged array. source is the endpoint the array was
// posted to when it arrived as a post datum, "" at top level.
func decodeParts(parts []json.RawMessage, source string) (Frame, error) {
	if len(parts) == 0 {
		return nil, malformed("", errors.New("empty array"))
	}
	var tag string
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return nil, malformed("", errors.New("tag is not a string"))
	}

	switch tag {
	case TagPost:
		return decodePost(parts)
	case TagSubscribe:
		if len(parts) < 4 {
			return nil, malformed(tag, fmt.Errorf("want at least 4 fields, got %d", len(parts)))
		}
		f := Subscribe{Source: source}
		if err := stringFields(tag, parts, &f.Filter, &f.Sink, &f.Name, &f.ReplySink, &f.ReplyName); err != nil {
			return nil, err
		}
		return f, nil
	case TagUnsubscribe:
		if len(parts) < 2 {
			return nil, malformed(tag, fmt.Errorf("want at least 2 fields, got %d", len(parts)))
		}
		f := Unsubscribe{Source: source}
		if err := stringFields(tag, parts, &f.Token); err != nil {
			return nil, err
		}
		return f, nil
	case TagCreate:
		if len(parts) < 3 {
			return nil, malformed(tag, fmt.Errorf("want at least 3 fields, got %d", len(parts)))
		}
		f := Create{Factory: source}
		arg, err := compact(parts[2])
		if err != nil {
			return nil, malformed(tag, err)
		}
		f.Arg = arg
		// parts[2] is the arg; the remaining strings follow it.
		rest := append([]json.RawMessage{parts[0], parts[1]}, parts[3:]...)
		if err := stringFields(tag, rest, &f.ClassName, &f.ReplySink, &f.ReplyName); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, &DecodeError{Tag: tag, Err: ErrUnknownTag}
	}
}

func decodePost(parts []json.RawMessage) (Frame, error) {
	if len(parts) < 3 {
		return nil, malformed(TagPost, fmt.Errorf("want at least 3 fields, got %d", len(parts)))
	}
	var p Post
	if err := str(TagPost, parts[1], &p.Target); err != nil {
		return nil, err
	}
	if len(parts) > 3 {
		if err := str(TagPost, parts[3], &p.Token); err != nil {
			return nil, err
		}
	}
	datum, err := compact(parts[2])
	if err != nil {
		return nil, malformed(TagPost, err)
	}
	p.Datum = datum

	if p.Token == "" {
		// Lift well-formed requests; anything else stays a plain post.
		if requestTag(datum) {
			var innerParts []json.RawMessage
			if err := json.Unmarshal(datum, &innerParts); err == nil {
				if f, err := decodeParts(innerParts, p.Target); err == nil {
					return f, nil
				}
			}
		}
	}
	return p, nil
}

// requestTag reports whether datum is an array tagged with a request tag.
func requestTag(datum json.RawMessage) bool {
	if len(datum) == 0 || datum[0] != '[' {
		return false
	}
	var head []json.RawMessage
	if err := json.Unmarshal(datum, &head); err != nil || len(head) == 0 {
		return false
	}
	var tag string
	if err := json.Unmarshal(head[0], &tag); err != nil {
		return false
	}
	switch tag {
	case TagSubscribe, TagUnsubscribe, TagCreate:
		return true
	}
	return false
}

// stringFields fills dst from parts[1:], leaving "" for omitted trailing fields.
func stringFields(tag string, parts []json.RawMessage, dst ...*string) error {
	for i, d := range dst {
		if i+1 >= len(parts) {
			*d = ""
			continue
		}
		if err := str(tag, parts[i+1], d); err != nil {
			return err
		}
	}
	return nil
}

func str(tag string, raw json.RawMessage, dst *string) error {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return malformed(tag, fmt.Errorf("field %s is not a string", raw))
	}
	if s == nil {
		*dst = ""
		return nil
	}
	*dst = *s
	return nil
}

// compact normalizes a raw JSON value. JSON null becomes nil.
func compact(raw json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	if buf.String() == "null" {
		return nil, nil
	}
	return json.RawMessage(buf.Bytes()), nil
}

func malformed(tag string, cause error) error {
	return &DecodeError{Tag: tag, Err: fmt.Errorf("%w: %v", ErrMalformed, cause)}
}
