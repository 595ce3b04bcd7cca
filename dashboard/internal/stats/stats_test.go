package stats

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/hopdash/hopdash/dashboard/internal/config"
)

const statsJSON = `{"connection_count": 3, "boot_time": 1700000000, "uptime": 125.5, "classes": ["fanout", "meta", "queue"]}`

// statsProm is what the server exposes with format prometheus.
const statsProm = `
# HELP hop_connection_count Open client connections.
# TYPE hop_connection_count gauge
hop_connection_count 3

# HELP hop_boot_time_seconds Server boot time since the epoch.
# TYPE hop_boot_time_seconds gauge
hop_boot_time_seconds 1.7e+09

# HELP hop_uptime_seconds Seconds since boot.
# TYPE hop_uptime_seconds gauge
hop_uptime_seconds 125.5

# HELP hop_class_info Registered node classes.
# TYPE hop_class_info gauge
hop_class_info{class="queue"} 1
hop_class_info{class="fanout"} 1
hop_class_info{class="meta"} 1
`

type fakeSink struct {
	mu    sync.Mutex
	stats []Stats
	errs  []error
}

func (f *fakeSink) SetStats(s Stats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = append(f.stats, s)
}

func (f *fakeSink) StatsUnavailable(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *fakeSink) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stats), len(f.errs)
}

func newPoller(t *testing.T, format string, h http.HandlerFunc) (*Poller, *fakeSink) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	sink := &fakeSink{}
	p := New(srv.URL+"/", config.StatsConfig{
		Path:     config.DefaultStatsPath,
		Format:   format,
		Interval: 20 * time.Millisecond,
		Timeout:  time.Second,
	}, sink)
	p.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return p, sink
}

func wantStats() Stats {
	return Stats{
		ConnectionCount: 3,
		BootTime:        time.Unix(1700000000, 0).UTC(),
		UptimeSeconds:   125.5,
		Classes:         []string{"fanout", "meta", "queue"},
		FetchedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetch_JSON(t *testing.T) {
	var gotPath, gotAccept string
	p, _ := newPoller(t, "json", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(statsJSON))
	})

	s, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if gotPath != "/_/server_stats" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept: got %q", gotAccept)
	}
	if !reflect.DeepEqual(*s, wantStats()) {
		t.Errorf("Fetch():\n got %+v\nwant %+v", *s, wantStats())
	}
}

func TestFetch_Prometheus(t *testing.T) {
	p, _ := newPoller(t, "prometheus", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(statsProm))
	})

	s, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !reflect.DeepEqual(*s, wantStats()) {
		t.Errorf("Fetch():\n got %+v\nwant %+v", *s, wantStats())
	}
}

func TestFetch_PrometheusMissingUptime(t *testing.T) {
	p, _ := newPoller(t, "prometheus", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# TYPE hop_connection_count gauge\nhop_connection_count 1\n"))
	})
	if _, err := p.Fetch(context.Background()); err == nil {
		t.Fatal("expected error when hop_uptime_seconds is absent")
	}
}

func TestFetch_JSONWithoutClasses(t *testing.T) {
	p, _ := newPoller(t, "json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"connection_count": 0, "boot_time": 0, "uptime": 1}`))
	})
	s, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if s.Classes == nil || len(s.Classes) != 0 {
		t.Errorf("Classes: got %#v, want empty non-nil slice", s.Classes)
	}
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format string
		h      http.HandlerFunc
	}{
		{"status 500", "json", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "down", http.StatusInternalServerError)
		}},
		{"bad json", "json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"connection_count":`))
		}},
		{"bad exposition", "prometheus", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("this is { not prometheus\n"))
		}},
		{"truncated exposition", "prometheus", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("hop_uptime_seconds 125.5\nhop_class_info{class=\"queue\" 1\n"))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newPoller(t, tc.format, tc.h)
			if _, err := p.Fetch(context.Background()); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestRefresh_ReportsToSink(t *testing.T) {
	fail := false
	var mu sync.Mutex
	p, sink := newPoller(t, "json", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(statsJSON))
	})

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	mu.Lock()
	fail = true
	mu.Unlock()
	if err := p.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() against 502: expected error")
	}

	ok, failed := sink.counts()
	if ok != 1 || failed != 1 {
		t.Fatalf("sink: got %d stats / %d failures, want 1 / 1", ok, failed)
	}
}

func TestRefresh_UnreachableServer(t *testing.T) {
	sink := &fakeSink{}
	p := New("http://127.0.0.1:1", config.StatsConfig{
		Path:     config.DefaultStatsPath,
		Format:   "json",
		Interval: time.Second,
		Timeout:  time.Second,
	}, sink)

	err := p.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected error for unreachable server")
	}
	if errors.Unwrap(err) == nil {
		t.Errorf("error %v does not wrap its cause", err)
	}
	if _, failed := sink.counts(); failed != 1 {
		t.Errorf("StatsUnavailable calls: got %d, want 1", failed)
	}
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	p, sink := newPoller(t, "json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(statsJSON))
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if ok, _ := sink.counts(); ok >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Run did not poll repeatedly")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
