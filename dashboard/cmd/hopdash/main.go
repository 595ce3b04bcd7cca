package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hopdash/hopdash/dashboard/internal/api"
	"github.com/hopdash/hopdash/dashboard/internal/config"
	"github.com/hopdash/hopdash/dashboard/internal/nodes"
	"github.com/hopdash/hopdash/dashboard/internal/state"
	"github.com/hopdash/hopdash/dashboard/internal/stats"
	"github.com/hopdash/hopdash/dashboard/internal/tap"
	"github.com/hopdash/hopdash/dashboard/internal/transport"
	"github.com/hopdash/hopdash/dashboard/internal/ws"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve static UI files from this directory; leave empty to disable")
	flag.Parse()

	// The level is swapped on config reload.
	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("hopdash starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Level())

	slog.Info("config loaded",
		"tap_url", cfg.Tap.URL(),
		"transport", cfg.Tap.Transport,
		"http_port", cfg.Dashboard.HTTPPort,
		"stats_format", cfg.Stats.Format,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		err := config.Watch(ctx, *configPath, func(c *config.Config) {
			level.Set(c.Level())
		})
		if err != nil {
			slog.Warn("config watch unavailable", "err", err)
		}
	}()

	dial, err := transport.New(cfg.Tap)
	if err != nil {
		slog.Error("failed to set up transport", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st := state.New(cfg.Dashboard.LogSize)
	statsPoller := stats.New(cfg.Tap.Server, cfg.Stats, st)
	tracker := nodes.New(cfg.Tap.Server, cfg.Nodes, st)

	// WebSocket hub: broadcasts the dashboard state to browsers.
	hub := ws.New(st, cfg.Dashboard.BroadcastInterval)
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "hopdash",
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Connected dashboard WebSocket clients",
	}, func() float64 { return float64(hub.Count()) }))

	client := tap.New(dial,
		tap.WithCheckInterval(cfg.Tap.CheckInterval),
		tap.WithLogger(logger),
		tap.WithMetrics(tap.NewMetrics(reg)),
	)
	d := &dashboard{client: client, state: st, stats: statsPoller, nodes: tracker, hub: hub}
	d.install(ctx)

	go statsPoller.Run(ctx)
	go hub.Run(ctx)
	go client.Run(ctx)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st))
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	if *uiDir != "" {
		httpMux.Handle("/", http.FileServer(http.Dir(*uiDir)))
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Dashboard.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Dashboard.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("hopdash shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
