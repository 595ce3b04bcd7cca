package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hopdash/hopdash/dashboard/internal/config"
	"github.com/hopdash/hopdash/dashboard/internal/tap"
	"github.com/hopdash/hopdash/dashboard/internal/transport"
	"github.com/hopdash/hopdash/pkg/frame"
)

// LogSink is the subscription name the server's log messages arrive under.
const LogSink = "log_messages"

const (
	eventBound   = "Node bound"
	eventUnbound = "Node unbound"
)

// Sink receives node registry changes.
type Sink interface {
	ReplaceNodes(byClass map[string][]string)
	NodeBound(class, name string)
	NodeUnbound(class, name string)
}

// Tracker keeps a Sink in step with the server's node registry: a full
// listing on Refresh, then incremental updates from log messages.
type Tracker struct {
	url    string
	client *http.Client
	sink   Sink
}

// New returns a Tracker for server using cfg.
func New(server string, cfg config.NodesConfig, sink Sink) *Tracker {
	return &Tracker{
		url:    strings.TrimRight(server, "/") + cfg.Path,
		client: &http.Client{Timeout: cfg.Timeout},
		sink:   sink,
	}
}

// Refresh replaces the sink's node set with the server's current listing.
func (t *Tracker) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return fmt.Errorf("nodes: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("nodes: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nodes: unexpected status %d", resp.StatusCode)
	}

	var byClass map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&byClass); err != nil {
		return fmt.Errorf("nodes: decode JSON: %w", err)
	}
	if byClass == nil {
		byClass = map[string][]string{}
	}
	t.sink.ReplaceNodes(byClass)
	slog.Debug("nodes: refreshed", "classes", len(byClass))
	return nil
}

// HandleMessage is a tap message hook. It applies
// ["post", "log_messages", ["Node bound"|"Node unbound", name, class], _]
// and ignores every other frame.
func (t *Tracker) HandleMessage(ev *tap.Event, _ transport.Transport) error {
	p, ok := ev.Frame.(frame.Post)
	if !ok || p.Target != LogSink {
		return nil
	}

	var fields []json.RawMessage
	if err := json.Unmarshal(p.Datum, &fields); err != nil || len(fields) == 0 {
		return nil
	}
	var kind string
	if err := json.Unmarshal(fields[0], &kind); err != nil {
		return nil
	}
	if kind != eventBound && kind != eventUnbound {
		return nil
	}

	var name, class string
	if len(fields) < 3 ||
		json.Unmarshal(fields[1], &name) != nil ||
		json.Unmarshal(fields[2], &class) != nil {
		return fmt.Errorf("nodes: malformed %q message: %s", kind, p.Datum)
	}

	if kind == eventBound {
		t.sink.NodeBound(class, name)
	} else {
		t.sink.NodeUnbound(class, name)
	}
	return nil
}
