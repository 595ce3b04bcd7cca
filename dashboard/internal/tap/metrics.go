package tap

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for one tap client.
type Metrics struct {
	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	hookErrors     *prometheus.CounterVec
	staleSends     prometheus.Counter
	reconnects     prometheus.Counter
	state          prometheus.Gauge
}

// NewMetrics creates the tap metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hopdash",
			Subsystem: "tap",
			Name:      "frames_sent_total",
			Help:      "Frames handed to the transport, by tag",
		}, []string{"tag"}),

		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hopdash",
			Subsystem: "tap",
			Name:      "frames_received_total",
			Help:      "Inbound frames decoded and dispatched, by tag",
		}, []string{"tag"}),

		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopdash",
			Subsystem: "tap",
			Name:      "decode_errors_total",
			Help:      "Inbound messages dropped because they did not decode",
		}),

		hookErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hopdash",
			Subsystem: "tap",
			Name:      "hook_errors_total",
			Help:      "Hook invocations that returned an error or panicked, by phase",
		}, []string{"phase"}),

		staleSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopdash",
			Subsystem: "tap",
			Name:      "stale_sends_total",
			Help:      "Sends dropped because the transport was not open",
		}),

		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopdash",
			Subsystem: "tap",
			Name:      "reconnects_total",
			Help:      "Transports replaced after being found closed",
		}),

		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hopdash",
			Subsystem: "tap",
			Name:      "transport_state",
			Help:      "Current transport state: 0 connecting, 1 open, 2 closing, 3 closed",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.framesSent,
			m.framesReceived,
			m.decodeErrors,
			m.hookErrors,
			m.staleSends,
			m.reconnects,
			m.state,
		)
	}
	return m
}
