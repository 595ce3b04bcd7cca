package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hopdash/hopdash/pkg/frame"
)

const (
	// writeTimeout is the deadline for a single write to the server.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for any inbound traffic before treating
	// the connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often ping frames are sent. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps a single inbound frame.
	maxMessageSize = 1 << 20
)

// wsTransport is a Transport over one gorilla/websocket connection.
type wsTransport struct {
	lifecycle

	url    string
	header http.Header
	dialer *websocket.Dialer

	// wmu serializes writes; gorilla allows one concurrent writer.
	wmu  sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketDialer returns a DialFunc that opens the tap over a WebSocket
// at rawURL (ws:// or wss://).
func NewWebSocketDialer(rawURL string, opts Options) DialFunc {
	header := http.Header{}
	if opts.Origin != "" {
		header.Set("Origin", opts.Origin)
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	return func(ctx context.Context, events chan<- Event) Transport {
		t := &wsTransport{url: rawURL, header: header, dialer: dialer}
		t.init(ctx, events, t)
		go t.run()
		return t
	}
}

func (t *wsTransport) run() {
	conn, _, err := t.dialer.DialContext(t.connCtx, t.url, t.header)
	if err != nil {
		t.finish(fmt.Errorf("transport: dial %s: %w", t.url, err))
		return
	}

	t.wmu.Lock()
	t.conn = conn
	t.wmu.Unlock()

	// Close may have raced the dial.
	if t.State() == Closing {
		conn.Close()
		t.finish(nil)
		return
	}

	go t.keepalive(conn)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The first message carries the self id.
	_, hello, err := conn.ReadMessage()
	if err != nil {
		t.finish(fmt.Errorf("transport: handshake: %w", err))
		return
	}
	t.opened(parseID(hello))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.finish(fmt.Errorf("transport: read: %w", err))
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		t.emit(Event{Kind: EventMessage, Data: msg, Transport: t})
	}
}

// keepalive sends ping frames until the connection goes away, and closes the
// connection once the transport's context ends.
func (t *wsTransport) keepalive(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-t.connCtx.Done():
			return
		case <-ticker.C:
			t.wmu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Send wraps data in the {"data": ...} envelope and writes it as one text frame.
func (t *wsTransport) Send(data []byte) error {
	if t.State() != Open {
		return ErrNotOpen
	}
	msg, err := frame.WireMessage(data)
	if err != nil {
		return fmt.Errorf("transport: wrap: %w", err)
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	if err := t.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		// The read loop notices the dead connection and reports the close.
		t.conn.Close()
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Close sends a close frame and tears the connection down.
func (t *wsTransport) Close() error {
	if !t.closing() {
		return nil
	}

	t.wmu.Lock()
	conn := t.conn
	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
		conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	t.wmu.Unlock()

	// Aborting unblocks a pending dial and stops keepalive, which closes conn.
	t.abort()
	return nil
}
