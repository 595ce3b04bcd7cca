// Package transporttest provides an in-memory transport.Transport for tests
// of code that consumes tap events.
package transporttest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hopdash/hopdash/dashboard/internal/transport"
)

// Transport is driven by the test: Open, Deliver and Drop push the events a
// real adapter would, in the same order relative to its state changes.
type Transport struct {
	events chan<- transport.Event
	state  atomic.Int32

	mu          sync.Mutex
	id          string
	sent        [][]byte
	closeCalled bool
}

// New returns a Connecting transport that pushes to events.
func New(events chan<- transport.Event) *Transport {
	return &Transport{events: events}
}

func (t *Transport) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

func (t *Transport) State() transport.State { return transport.State(t.state.Load()) }

// Send records data. It fails with transport.ErrNotOpen unless Open.
func (t *Transport) Send(data []byte) error {
	if t.State() != transport.Open {
		return transport.ErrNotOpen
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

// Close emits a clean close event, if the consumer has room for it, and moves
// to Closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closeCalled = true
	t.mu.Unlock()
	if t.State() == transport.Closed {
		return nil
	}
	t.state.Store(int32(transport.Closing))
	select {
	case t.events <- transport.Event{Kind: transport.EventClose, Transport: t}:
	default:
	}
	t.state.Store(int32(transport.Closed))
	return nil
}

// Open completes the handshake with the given self id.
func (t *Transport) Open(id string) {
	t.mu.Lock()
	t.id = id
	t.mu.Unlock()
	t.state.Store(int32(transport.Open))
	t.events <- transport.Event{Kind: transport.EventOpen, Transport: t}
}

// Deliver pushes one inbound message.
func (t *Transport) Deliver(raw string) {
	t.events <- transport.Event{Kind: transport.EventMessage, Data: []byte(raw), Transport: t}
}

// Drop simulates a network failure: the close event goes out first, then
// the state becomes Closed.
func (t *Transport) Drop(err error) {
	t.events <- transport.Event{Kind: transport.EventClose, Err: err, Transport: t}
	t.state.Store(int32(transport.Closed))
}

// Sent returns a copy of every frame passed to Send.
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent...)
}

// CloseCalled reports whether Close was called.
func (t *Transport) CloseCalled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCalled
}

// Dialer records every Transport it creates. With AutoOpen set, each one
// opens in the background with the next id from IDs, or client-N once IDs
// run out.
type Dialer struct {
	AutoOpen bool
	IDs      []string

	mu     sync.Mutex
	dialed []*Transport
}

// Dial has the signature of transport.DialFunc.
func (d *Dialer) Dial(_ context.Context, events chan<- transport.Event) transport.Transport {
	t := New(events)

	d.mu.Lock()
	n := len(d.dialed)
	d.dialed = append(d.dialed, t)
	d.mu.Unlock()

	if d.AutoOpen {
		id := fmt.Sprintf("client-%d", n+1)
		if n < len(d.IDs) {
			id = d.IDs[n]
		}
		go t.Open(id)
	}
	return t
}

// Count returns how many transports have been dialed.
func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

// Get returns the i-th dialed transport.
func (d *Dialer) Get(i int) *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialed[i]
}
