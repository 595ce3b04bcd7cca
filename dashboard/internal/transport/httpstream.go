package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// streamTransport is a Transport over HTTP streaming: one long-lived GET
// carries inbound messages one per line, and every send is a separate POST.
type streamTransport struct {
	lifecycle

	url    string
	origin string
	client *http.Client

	// sendErr is the cause of a failed send; run reports it as the close error.
	mu      sync.Mutex
	sendErr error
}

// NewHTTPStreamDialer returns a DialFunc that opens the tap over HTTP
// streaming at rawURL (http:// or https://).
func NewHTTPStreamDialer(rawURL string, opts Options) DialFunc {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return func(ctx context.Context, events chan<- Event) Transport {
		t := &streamTransport{url: rawURL, origin: opts.Origin, client: client}
		t.init(ctx, events, t)
		go t.run(opts.HandshakeTimeout)
		return t
	}
}

func (t *streamTransport) run(handshakeTimeout time.Duration) {
	req, err := http.NewRequestWithContext(t.connCtx, http.MethodGet, t.url, nil)
	if err != nil {
		t.finish(fmt.Errorf("transport: build request: %w", err))
		return
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Cache-Control", "no-cache")
	t.setOrigin(req)

	// The handshake timer only guards the response headers and the id line.
	var handshake *time.Timer
	if handshakeTimeout > 0 {
		handshake = time.AfterFunc(handshakeTimeout, t.abort)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.finish(fmt.Errorf("transport: open stream: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.finish(fmt.Errorf("transport: open stream: unexpected status %d", resp.StatusCode))
		return
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 4096), maxMessageSize)

	opened := false
	for sc.Scan() {
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if !opened {
			if handshake != nil {
				handshake.Stop()
			}
			opened = true
			t.opened(parseID(line))
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		t.emit(Event{Kind: EventMessage, Data: msg, Transport: t})
	}

	if cause := t.sendFailure(); cause != nil {
		t.finish(cause)
		return
	}
	err = sc.Err()
	if err == nil {
		err = io.EOF
	}
	t.finish(fmt.Errorf("transport: read stream: %w", err))
}

func (t *streamTransport) sendFailure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sendErr
}

// Send posts data as the form field "data", addressed by the self id. A
// failed post tears the stream down.
func (t *streamTransport) Send(data []byte) error {
	if t.State() != Open {
		return ErrNotOpen
	}
	err := t.post(t.ctx, url.Values{
		"metadata.id":   {t.ID()},
		"metadata.type": {"send"},
		"data":          {string(data)},
	})
	if err != nil {
		// Drop the stream; run reports the close with this cause.
		t.mu.Lock()
		if t.sendErr == nil {
			t.sendErr = err
		}
		t.mu.Unlock()
		t.abort()
	}
	return err
}

// Close tells the server the stream is going away and drops the connection.
func (t *streamTransport) Close() error {
	wasOpen := t.State() == Open
	if !t.closing() {
		return nil
	}
	var err error
	if wasOpen {
		err = t.post(t.ctx, url.Values{
			"metadata.id":   {t.ID()},
			"metadata.type": {"close"},
		})
	}
	t.abort()
	return err
}

func (t *streamTransport) post(ctx context.Context, form url.Values) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	t.setOrigin(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("transport: post: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (t *streamTransport) setOrigin(req *http.Request) {
	if t.origin != "" {
		req.Header.Set("Origin", t.origin)
	}
}
