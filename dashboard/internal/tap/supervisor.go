package tap

import (
	"context"

	"github.com/hopdash/hopdash/dashboard/internal/transport"
)

// install dials a new transport and makes it current. Events from the
// previous transport are still drained by Run.
func (c *Client) install(ctx context.Context) transport.Transport {
	tr := c.dial(ctx, c.events)

	c.mu.Lock()
	c.cur = tr
	c.mu.Unlock()

	c.metrics.state.Set(float64(tr.State()))
	c.log.Debug("tap: transport installed")
	return tr
}

// checkConnectivity is one supervisor tick. A closed transport is replaced
// exactly once; any other state is left alone. It reports whether a new
// transport was installed.
func (c *Client) checkConnectivity(ctx context.Context) bool {
	tr := c.Transport()
	if tr == nil {
		return false
	}

	switch s := tr.State(); s {
	case transport.Closed:
		c.metrics.reconnects.Inc()
		c.log.Info("tap: transport closed, reconnecting", "id", tr.ID())
		c.install(ctx)
		return true
	default:
		c.metrics.state.Set(float64(s))
		return false
	}
}
