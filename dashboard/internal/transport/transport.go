package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hopdash/hopdash/dashboard/internal/config"
)

// State is the lifecycle state of one transport. The numeric values match
// the browser readyState convention.
type State int32

const (
	Connecting State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrNotOpen is returned by Send when the transport is not Open.
var ErrNotOpen = errors.New("transport: not open")

// EventKind identifies what happened on a transport.
type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered by a transport to its consumer, in order.
type Event struct {
	Kind EventKind

	// Data is the raw inbound payload of a message event.
	Data []byte

	// Err is the cause of a close event; nil after a requested Close.
	Err error

	// Transport is the adapter that produced the event.
	Transport Transport
}

// Transport owns one underlying streaming connection to the tap endpoint.
type Transport interface {
	// ID is the self id assigned by the server, "" until the transport opens.
	ID() string
	State() State

	// Send delivers one encoded frame. It fails with ErrNotOpen unless the
	// state is Open.
	Send(data []byte) error

	// Close starts an orderly shutdown. A close event follows.
	Close() error
}

// DialFunc starts a new transport and returns it in the Connecting state.
// Events are pushed to events until the transport has emitted its close event
// or ctx is cancelled.
type DialFunc func(ctx context.Context, events chan<- Event) Transport

// Options tune the dialers.
type Options struct {
	// Origin, when set, is sent as the Origin header.
	Origin string

	HandshakeTimeout time.Duration

	// HTTPClient is used by the HTTP stream transport. Its Timeout must be
	// zero since the stream request lives as long as the transport.
	HTTPClient *http.Client
}

// New returns the DialFunc selected by cfg.Transport.
func New(cfg config.TapConfig) (DialFunc, error) {
	opts := Options{HandshakeTimeout: cfg.HandshakeTimeout}
	if cfg.CrossDomain {
		opts.Origin = cfg.Origin
	} else {
		opts.Origin = sameOrigin(cfg.Server)
	}

	switch cfg.Transport {
	case "websocket", "":
		u, err := websocketURL(cfg.URL())
		if err != nil {
			return nil, err
		}
		return NewWebSocketDialer(u, opts), nil
	case "http":
		return NewHTTPStreamDialer(cfg.URL(), opts), nil
	default:
		return nil, fmt.Errorf("transport: unknown transport %q", cfg.Transport)
	}
}

// websocketURL maps an http(s) URL onto ws(s).
func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("transport: parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func sameOrigin(server string) string {
	u, err := url.Parse(server)
	if err != nil {
		return ""
	}
	scheme := u.Scheme
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// parseID extracts the self id from a handshake message. The server may send
// it as a JSON string or as bare text.
func parseID(msg []byte) string {
	s := strings.TrimSpace(string(msg))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return s
}

// lifecycle holds the state shared by every adapter: the readyState, the
// self id and the once-only close sequence.
type lifecycle struct {
	state  atomic.Int32
	mu     sync.RWMutex
	id     string
	events chan<- Event
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	self   Transport

	// connCtx scopes the underlying dial or stream request. abort tears the
	// connection down without cancelling ctx, so the close event still goes out.
	connCtx context.Context
	abort   context.CancelFunc
}

func (l *lifecycle) init(ctx context.Context, events chan<- Event, self Transport) {
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.connCtx, l.abort = context.WithCancel(l.ctx)
	l.events = events
	l.self = self
	l.state.Store(int32(Connecting))
}

func (l *lifecycle) ID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.id
}

func (l *lifecycle) State() State { return State(l.state.Load()) }

// opened records the self id and announces the transport.
func (l *lifecycle) opened(id string) {
	l.mu.Lock()
	l.id = id
	l.mu.Unlock()
	if !l.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		return
	}
	l.emit(Event{Kind: EventOpen, Transport: l.self})
}

// closing moves Connecting/Open to Closing. It reports false if the
// transport is already on its way down.
func (l *lifecycle) closing() bool {
	for {
		s := l.state.Load()
		if s == int32(Closing) || s == int32(Closed) {
			return false
		}
		if l.state.CompareAndSwap(s, int32(Closing)) {
			return true
		}
	}
}

// finish emits the close event and then marks the transport Closed. The event
// is queued before the state flips so a consumer that polls State never
// replaces the transport ahead of handling its close.
func (l *lifecycle) finish(err error) {
	l.once.Do(func() {
		if State(l.state.Load()) == Closing {
			err = nil
		}
		l.emit(Event{Kind: EventClose, Err: err, Transport: l.self})
		l.state.Store(int32(Closed))
		l.cancel()
	})
}

func (l *lifecycle) emit(ev Event) {
	select {
	case l.events <- ev:
	case <-l.ctx.Done():
	}
}
