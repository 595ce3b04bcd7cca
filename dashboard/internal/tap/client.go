package tap

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hopdash/hopdash/dashboard/internal/transport"
	"github.com/hopdash/hopdash/pkg/frame"
)

// DefaultCheckInterval is how often the supervisor polls the transport state.
const DefaultCheckInterval = 5 * time.Second

// eventBuffer bounds the queue between the transports and the event loop.
const eventBuffer = 64

// Client is a tap session with a Hop server. All hooks run on the goroutine
// executing Run, one event at a time. The send methods may be called from
// any goroutine.
type Client struct {
	dial     transport.DialFunc
	hooks    *Registry
	interval time.Duration
	log      *slog.Logger
	metrics  *Metrics
	events   chan transport.Event

	mu  sync.RWMutex
	cur transport.Transport
}

// Option configures a Client.
type Option func(*Client)

// WithCheckInterval sets the supervisor polling period.
func WithCheckInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics sets the metrics the client records to.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a Client that opens transports with dial. Nothing is dialed
// until Run.
func New(dial transport.DialFunc, opts ...Option) *Client {
	c := &Client{
		dial:     dial,
		hooks:    NewRegistry(),
		interval: DefaultCheckInterval,
		log:      slog.Default(),
		events:   make(chan transport.Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// Hooks returns the client's hook registry.
func (c *Client) Hooks() *Registry { return c.hooks }

func (c *Client) OnOpen(fn HookFunc)    { c.hooks.Register(PhaseOpen, fn) }
func (c *Client) OnMessage(fn HookFunc) { c.hooks.Register(PhaseMessage, fn) }
func (c *Client) OnClose(fn HookFunc)   { c.hooks.Register(PhaseClose, fn) }

// Transport returns the currently installed transport, nil before Run.
func (c *Client) Transport() transport.Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur
}

// SelfID returns the current transport's self id, "" if it has not opened.
func (c *Client) SelfID() string {
	if tr := c.Transport(); tr != nil {
		return tr.ID()
	}
	return ""
}

// Run installs the first transport and processes transport events and
// supervisor ticks until ctx is cancelled. The current transport is closed
// on return.
func (c *Client) Run(ctx context.Context) {
	c.install(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if tr := c.Transport(); tr != nil {
				tr.Close() //nolint:errcheck
			}
			return
		case ev := <-c.events:
			c.handle(ev)
		case <-ticker.C:
			c.checkConnectivity(ctx)
		}
	}
}

// handle runs the hooks for one transport event. Open and message events from
// a transport that has since been replaced are ignored; its close still runs
// the close hooks.
func (c *Client) handle(ev transport.Event) {
	current := ev.Transport == c.Transport()

	switch ev.Kind {
	case transport.EventOpen:
		if !current {
			return
		}
		c.metrics.state.Set(float64(transport.Open))
		c.log.Info("tap: connected", "id", ev.Transport.ID())
		c.runHooks(PhaseOpen, &Event{Phase: PhaseOpen}, ev.Transport)

	case transport.EventMessage:
		if !current {
			return
		}
		c.Dispatch(ev.Transport, ev.Data)

	case transport.EventClose:
		if current {
			c.metrics.state.Set(float64(transport.Closed))
		}
		c.log.Warn("tap: disconnected", "id", ev.Transport.ID(), "err", ev.Err)
		c.runHooks(PhaseClose, &Event{Phase: PhaseClose, Err: ev.Err}, ev.Transport)
	}
}

// Dispatch decodes one inbound message and runs the message hooks with the
// result. A message that does not decode is logged and dropped; the transport
// stays up. Dispatch is called by Run and must not be called concurrently
// with it.
func (c *Client) Dispatch(tr transport.Transport, raw []byte) {
	f, err := frame.Decode(raw)
	if err != nil {
		c.metrics.decodeErrors.Inc()
		c.log.Warn("tap: dropping undecodable message", "err", err, "bytes", len(raw))
		return
	}
	c.metrics.framesReceived.WithLabelValues(f.Tag()).Inc()
	c.runHooks(PhaseMessage, &Event{Phase: PhaseMessage, Raw: raw, Frame: f}, tr)
}

func (c *Client) runHooks(phase Phase, ev *Event, tr transport.Transport) {
	err := c.hooks.Run(phase, ev, tr)
	if err == nil {
		return
	}
	var failed []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		failed = joined.Unwrap()
	} else {
		failed = []error{err}
	}
	for _, e := range failed {
		c.metrics.hookErrors.WithLabelValues(phase.String()).Inc()
		c.log.Error("tap: hook failed", "phase", phase.String(), "err", e)
	}
}

// Post sends datum to target. An empty token is written as "".
func (c *Client) Post(target string, datum any, token string) error {
	p, err := frame.NewPost(target, datum, token)
	if err != nil {
		return err
	}
	c.send(p)
	return nil
}

// Subscribe asks source to deliver messages matching filter to this client
// under name. Acknowledgement comes back as replyName when it is set.
func (c *Client) Subscribe(source, filter, name, replyName string) {
	self := c.SelfID()
	c.send(frame.Subscribe{
		Source:    source,
		Filter:    filter,
		Sink:      self,
		Name:      name,
		ReplySink: replySink(self, replyName),
		ReplyName: replyName,
	})
}

// Unsubscribe cancels the subscription identified by token at source.
func (c *Client) Unsubscribe(source, token string) {
	c.send(frame.Unsubscribe{Source: source, Token: token})
}

// Create asks factory to instantiate className with arg. An empty factory
// means the server's default factory.
func (c *Client) Create(className string, arg any, replyName, factory string) error {
	cr, err := frame.NewCreate(factory, className, arg, replySink(c.SelfID(), replyName), replyName)
	if err != nil {
		return err
	}
	c.send(cr)
	return nil
}

func replySink(self, replyName string) string {
	if replyName == "" {
		return ""
	}
	return self
}

// send encodes f and hands it to the current transport. Sends while the
// transport is not open are dropped.
func (c *Client) send(f frame.Frame) {
	tr := c.Transport()
	if tr == nil || tr.State() != transport.Open {
		c.dropStale(f)
		return
	}

	data, err := frame.Encode(f)
	if err != nil {
		c.log.Error("tap: encode failed", "tag", f.Tag(), "err", err)
		return
	}

	if err := tr.Send(data); err != nil {
		if errors.Is(err, transport.ErrNotOpen) {
			c.dropStale(f)
			return
		}
		c.log.Warn("tap: send failed", "tag", f.Tag(), "err", err)
		return
	}
	c.metrics.framesSent.WithLabelValues(f.Tag()).Inc()
}

func (c *Client) dropStale(f frame.Frame) {
	c.metrics.staleSends.Inc()
	c.log.Debug("tap: dropping send, transport not open", "tag", f.Tag())
}
