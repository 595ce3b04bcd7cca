package main

import (
	"context"
	"log/slog"

	"github.com/hopdash/hopdash/dashboard/internal/state"
	"github.com/hopdash/hopdash/dashboard/internal/tap"
	"github.com/hopdash/hopdash/dashboard/internal/transport"
	"github.com/hopdash/hopdash/dashboard/internal/ws"
)

type refresher interface {
	Refresh(ctx context.Context) error
}

type nodeTracker interface {
	refresher
	HandleMessage(ev *tap.Event, tr transport.Transport) error
}

// dashboard ties the tap session to the dashboard state.
type dashboard struct {
	client *tap.Client
	state  *state.Store
	stats  refresher
	nodes  nodeTracker
	hub    *ws.Hub
}

// install registers the dashboard's hooks on the client. ctx bounds the
// HTTP refreshes started from the open hook.
func (d *dashboard) install(ctx context.Context) {
	d.client.OnOpen(func(_ *tap.Event, tr transport.Transport) error {
		d.state.SetConnected(tr.ID())
		d.hub.Notify()
		return nil
	})

	// Refreshes hit the server over HTTP; they run off the event loop.
	d.client.OnOpen(func(*tap.Event, transport.Transport) error {
		go d.refresh(ctx, "stats", d.stats)
		go d.refresh(ctx, "nodes", d.nodes)
		return nil
	})

	d.client.OnOpen(func(_ *tap.Event, tr transport.Transport) error {
		if err := d.client.Post(tr.ID(), map[string]bool{"test": true}, ""); err != nil {
			return err
		}
		if err := d.client.Create("fanout", []string{"system.log"}, "completion1", ""); err != nil {
			return err
		}
		d.client.Subscribe("meta", "system.log", "sub_messages", "completion2")
		d.client.Subscribe("system.log", "", "log_messages", "completion3")
		return nil
	})

	d.client.OnMessage(func(ev *tap.Event, _ transport.Transport) error {
		d.hub.Publish(ws.EventFrame, d.state.AppendLog(ev.Raw))
		return nil
	})
	d.client.OnMessage(d.nodes.HandleMessage)

	d.client.OnClose(func(ev *tap.Event, _ transport.Transport) error {
		d.state.SetDisconnected(ev.Err)
		d.hub.Notify()
		return nil
	})
}

func (d *dashboard) refresh(ctx context.Context, what string, r refresher) {
	if err := r.Refresh(ctx); err != nil {
		slog.Warn("hopdash: refresh on connect failed", "what", what, "err", err)
		return
	}
	d.hub.Notify()
}
