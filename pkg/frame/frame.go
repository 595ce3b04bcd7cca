package frame

import (
	"encoding/json"
	"fmt"
)

// Wire tags.
const (
	TagPost        = "post"
	TagSubscribe   = "subscribe"
	TagUnsubscribe = "unsubscribe"
	TagCreate      = "create"
)

// DefaultFactory is the endpoint Create frames target when none is given.
const DefaultFactory = "factory"

// Frame is a decoded tap protocol message. The set of implementations is
// closed: Post, Subscribe, Unsubscribe and Create.
type Frame interface {
	// Tag returns the frame's own wire tag.
	Tag() string
	frame()
}

// Post delivers Datum to Target. Token is "" when no correlation is wanted.
type Post struct {
	Target string
	Datum  json.RawMessage
	Token  string
}

// Subscribe asks Source to forward messages matching Filter to Sink under
// Name. When ReplyName is set, Source acknowledges by posting to ReplySink.
type Subscribe struct {
	Source    string
	Filter    string
	Sink      string
	Name      string
	ReplySink string
	ReplyName string
}

// Unsubscribe cancels the subscription identified by Token at Source.
type Unsubscribe struct {
	Source string
	Token  string
}

// Create asks Factory to instantiate ClassName with Arg.
type Create struct {
	Factory   string
	ClassName string
	Arg       json.RawMessage
	ReplySink string
	ReplyName string
}

func (Post) Tag() string        { return TagPost }
func (Subscribe) Tag() string   { return TagSubscribe }
func (Unsubscribe) Tag() string { return TagUnsubscribe }
func (Create) Tag() string      { return TagCreate }

func (Post) frame()        {}
func (Subscribe) frame()   {}
func (Unsubscribe) frame() {}
func (Create) frame()      {}

// NewPost marshals datum and returns the Post frame carrying it.
func NewPost(target string, datum any, token string) (Post, error) {
	raw, err := marshalValue(datum)
	if err != nil {
		return Post{}, fmt.Errorf("frame: post datum: %w", err)
	}
	return Post{Target: target, Datum: raw, Token: token}, nil
}

// NewCreate marshals arg and returns the Create frame carrying it. An empty
// factory selects DefaultFactory.
func NewCreate(factory, className string, arg any, replySink, replyName string) (Create, error) {
	raw, err := marshalValue(arg)
	if err != nil {
		return Create{}, fmt.Errorf("frame: create arg: %w", err)
	}
	if factory == "" {
		factory = DefaultFactory
	}
	return Create{
		Factory:   factory,
		ClassName: className,
		Arg:       raw,
		ReplySink: replySink,
		ReplyName: replyName,
	}, nil
}

// marshalValue encodes v as compact JSON. nil stays nil so it encodes as null.
func marshalValue(v any) (json.RawMessage, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return compact(v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
