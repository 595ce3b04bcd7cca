package frame_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hopdash/hopdash/pkg/frame"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		f    frame.Frame
	}{
		{"post with token", frame.Post{Target: "client-7", Datum: json.RawMessage(`{"test":true}`), Token: "t1"}},
		{"post without token", frame.Post{Target: "client-7", Datum: json.RawMessage(`[1,"two",null]`)}},
		{"post nil datum", frame.Post{Target: "x"}},
		{"subscribe full", frame.Subscribe{
			Source: "meta", Filter: "system.log", Sink: "client-7", Name: "sub_messages",
			ReplySink: "client-7", ReplyName: "completion2",
		}},
		{"subscribe no reply", frame.Subscribe{Source: "system.log", Sink: "client-7", Name: "log_messages"}},
		{"unsubscribe", frame.Unsubscribe{Source: "system.log", Token: "log_messages"}},
		{"create", frame.Create{
			Factory: "factory", ClassName: "fanout", Arg: json.RawMessage(`["system.log"]`),
			ReplySink: "client-7", ReplyName: "completion1",
		}},
		{"create nil arg", frame.Create{Factory: "other", ClassName: "queue"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := frame.Encode(tc.f)
			require.NoError(t, err)

			got, err := frame.Decode(b)
			require.NoError(t, err)
			assert.Equal(t, tc.f, got)
		})
	}
}

func TestEncode_WireShapes(t *testing.T) {
	tests := []struct {
		name string
		f    frame.Frame
		want string
	}{
		{
			"post empty token",
			frame.Post{Target: "client-7", Datum: json.RawMessage(`{"test":true}`)},
			`["post","client-7",{"test":true},""]`,
		},
		{
			"subscribe wrapped in post",
			frame.Subscribe{Source: "meta", Filter: "system.log", Sink: "c", Name: "n"},
			`["post","meta",["subscribe","system.log","c","n","",""],""]`,
		},
		{
			"unsubscribe wrapped in post",
			frame.Unsubscribe{Source: "system.log", Token: "tok"},
			`["post","system.log",["unsubscribe","tok"],""]`,
		},
		{
			"create wrapped in post",
			frame.Create{Factory: "factory", ClassName: "fanout", Arg: json.RawMessage(`["system.log"]`)},
			`["post","factory",["create","fanout",["system.log"],"",""],""]`,
		},
		{
			"nil datum is null",
			frame.Post{Target: "x"},
			`["post","x",null,""]`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := frame.Encode(tc.f)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(b))
		})
	}
}

func TestDecode_UnknownTag(t *testing.T) {
	for _, in := range []string{
		`["publish","x",1,""]`,
		`["POST","x",1,""]`,
		`["","x"]`,
	} {
		_, err := frame.Decode([]byte(in))
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, frame.ErrUnknownTag), "%s: %v", in, err)

		var de *frame.DecodeError
		require.True(t, errors.As(err, &de))
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, in := range []string{
		``,
		`{}`,
		`"post"`,
		`[]`,
		`[42,"x"]`,
		`["post","x"]`,
		`["post",7,{}]`,
		`["post","x",{},5]`,
		`["subscribe","f","s"]`,
		`["unsubscribe"]`,
		`["create","fanout"]`,
	} {
		_, err := frame.Decode([]byte(in))
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, frame.ErrMalformed), "%q: %v", in, err)
	}
}

func TestDecode_RequestShapedDatumStaysPost(t *testing.T) {
	tests := []struct {
		in   string
		want frame.Post
	}{
		{
			`["post","log_messages",["create"],""]`,
			frame.Post{Target: "log_messages", Datum: json.RawMessage(`["create"]`)},
		},
		{
			`["post","meta",["subscribe","f"],""]`,
			frame.Post{Target: "meta", Datum: json.RawMessage(`["subscribe","f"]`)},
		},
		{
			`["post","x",["unsubscribe",7],""]`,
			frame.Post{Target: "x", Datum: json.RawMessage(`["unsubscribe",7]`)},
		},
	}
	for _, tc := range tests {
		f, err := frame.Decode([]byte(tc.in))
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, f, tc.in)
	}
}

func TestDecode_WellFormedRequestDatumIsLifted(t *testing.T) {
	b, err := frame.Encode(frame.Post{Target: "x", Datum: json.RawMessage(`["unsubscribe","t"]`)})
	require.NoError(t, err)

	f, err := frame.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, frame.Unsubscribe{Source: "x", Token: "t"}, f)
}

func TestDecode_OptionalFieldsDefaultEmpty(t *testing.T) {
	f, err := frame.Decode([]byte(`["post","x",{"a":1}]`))
	require.NoError(t, err)
	assert.Equal(t, frame.Post{Target: "x", Datum: json.RawMessage(`{"a":1}`)}, f)

	f, err = frame.Decode([]byte(`["subscribe","system.log","c","n"]`))
	require.NoError(t, err)
	assert.Equal(t, frame.Subscribe{Filter: "system.log", Sink: "c", Name: "n"}, f)

	f, err = frame.Decode([]byte(`["create","fanout",[],null,null]`))
	require.NoError(t, err)
	assert.Equal(t, frame.Create{ClassName: "fanout", Arg: json.RawMessage(`[]`)}, f)
}

func TestDecode_CompactsDatum(t *testing.T) {
	f, err := frame.Decode([]byte(`[ "post", "log_messages", [ "Node bound", "n1", "queue" ], "" ]`))
	require.NoError(t, err)
	p, ok := f.(frame.Post)
	require.True(t, ok)
	assert.Equal(t, `["Node bound","n1","queue"]`, string(p.Datum))
}

func TestDecode_CorrelatedPostIsNotLifted(t *testing.T) {
	// A token marks a reply carrying a request-shaped datum, not a request.
	f, err := frame.Decode([]byte(`["post","x",["create","fanout",[]],"tok"]`))
	require.NoError(t, err)
	assert.IsType(t, frame.Post{}, f)
}

func TestNewPost_NoTokenEncodesEmptyString(t *testing.T) {
	p, err := frame.NewPost("client-7", map[string]bool{"test": true}, "")
	require.NoError(t, err)

	b, err := frame.Encode(p)
	require.NoError(t, err)

	var arr []any
	require.NoError(t, json.Unmarshal(b, &arr))
	require.Len(t, arr, 4)
	assert.Equal(t, "", arr[3])
}

func TestNewPost_UnmarshalableDatum(t *testing.T) {
	_, err := frame.NewPost("x", make(chan int), "")
	assert.Error(t, err)
}

func TestNewCreate_DefaultFactory(t *testing.T) {
	c, err := frame.NewCreate("", "fanout", []string{"system.log"}, "", "completion1")
	require.NoError(t, err)
	assert.Equal(t, frame.DefaultFactory, c.Factory)
	assert.Equal(t, `["system.log"]`, string(c.Arg))
}

func TestWireMessage(t *testing.T) {
	b, err := frame.WireMessage([]byte(`["post","x",1,""]`))
	require.NoError(t, err)

	var env frame.Envelope
	require.NoError(t, json.Unmarshal(b, &env))
	assert.Equal(t, `["post","x",1,""]`, env.Data)
}
