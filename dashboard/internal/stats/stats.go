package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/hopdash/hopdash/dashboard/internal/config"
)

// Prometheus metric names exposed by the server in prometheus format.
const (
	metricConnectionCount = "hop_connection_count"
	metricBootTime        = "hop_boot_time_seconds"
	metricUptime          = "hop_uptime_seconds"

	// One series per registered class, labelled class="...".
	metricClassInfo = "hop_class_info"
	classLabel      = "class"
)

// Stats is one reading of the server's statistics.
type Stats struct {
	ConnectionCount int       `json:"connection_count"`
	BootTime        time.Time `json:"boot_time"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
	Classes         []string  `json:"classes"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// Sink receives the outcome of every refresh.
type Sink interface {
	SetStats(s Stats)
	StatsUnavailable(err error)
}

// serverStats is the JSON shape of GET /_/server_stats.
type serverStats struct {
	ConnectionCount float64  `json:"connection_count"`
	BootTime        float64  `json:"boot_time"`
	Uptime          float64  `json:"uptime"`
	Classes         []string `json:"classes"`
}

// Poller fetches the server's stats on an interval and reports them to a Sink.
type Poller struct {
	url      string
	format   string
	interval time.Duration
	client   *http.Client
	sink     Sink
	now      func() time.Time
}

// New returns a Poller for server using cfg.
func New(server string, cfg config.StatsConfig, sink Sink) *Poller {
	return &Poller{
		url:      strings.TrimRight(server, "/") + cfg.Path,
		format:   cfg.Format,
		interval: cfg.Interval,
		client:   &http.Client{Timeout: cfg.Timeout},
		sink:     sink,
		now:      time.Now,
	}
}

// Run refreshes immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.Refresh(ctx) //nolint:errcheck

	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Refresh(ctx) //nolint:errcheck
		}
	}
}

// Refresh fetches the stats once. On failure the sink is told the stats are
// unavailable and the error is returned.
func (p *Poller) Refresh(ctx context.Context) error {
	s, err := p.Fetch(ctx)
	if err != nil {
		slog.Warn("stats: fetch failed", "url", p.url, "err", err)
		p.sink.StatsUnavailable(err)
		return err
	}
	p.sink.SetStats(*s)
	return nil
}

// Fetch performs one GET and decodes the body according to the configured format.
func (p *Poller) Fetch(ctx context.Context) (*Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("stats: build request: %w", err)
	}
	if p.format == "prometheus" {
		req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stats: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats: unexpected status %d", resp.StatusCode)
	}

	var s *Stats
	if p.format == "prometheus" {
		s, err = parsePrometheus(resp.Body)
	} else {
		s, err = parseJSON(resp.Body)
	}
	if err != nil {
		return nil, err
	}
	s.FetchedAt = p.now().UTC()
	return s, nil
}

func parseJSON(r io.Reader) (*Stats, error) {
	var raw serverStats
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("stats: decode JSON: %w", err)
	}
	classes := raw.Classes
	if classes == nil {
		classes = []string{}
	}
	return &Stats{
		ConnectionCount: int(raw.ConnectionCount),
		BootTime:        unixSeconds(raw.BootTime),
		UptimeSeconds:   raw.Uptime,
		Classes:         classes,
	}, nil
}

func parsePrometheus(r io.Reader) (*Stats, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("stats: parse prometheus text: %w", err)
	}
	if mfs[metricUptime] == nil {
		return nil, fmt.Errorf("stats: %s missing from exposition", metricUptime)
	}

	return &Stats{
		ConnectionCount: int(value(mfs[metricConnectionCount])),
		BootTime:        unixSeconds(value(mfs[metricBootTime])),
		UptimeSeconds:   value(mfs[metricUptime]),
		Classes:         labelValues(mfs[metricClassInfo], classLabel),
	}, nil
}

// value returns the sum of all gauge, counter or untyped samples in mf, 0 if
// mf is nil.
func value(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

// labelValues collects the distinct values of label across mf, sorted.
func labelValues(mf *dto.MetricFamily, label string) []string {
	out := []string{}
	if mf == nil {
		return out
	}
	seen := make(map[string]bool)
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && !seen[lp.GetValue()] {
				seen[lp.GetValue()] = true
				out = append(out, lp.GetValue())
			}
		}
	}
	sort.Strings(out)
	return out
}

func unixSeconds(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second))).UTC()
}
