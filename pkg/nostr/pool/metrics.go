package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	published  *prometheus.CounterVec
	received   prometheus.Counter
	duplicates prometheus.Counter
	dropped    prometheus.Counter
	reconnects prometheus.Counter
	connected  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		published: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nopu",
				Subsystem: "pool",
				Name:      "publish_results_total",
				Help:      "Per-relay outcomes of published events.",
			},
			[]string{"result"},
		),
		received: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nopu",
				Subsystem: "pool",
				Name:      "events_received_total",
				Help:      "Distinct events received from relays.",
			},
		),
		duplicates: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nopu",
				Subsystem: "pool",
				Name:      "events_duplicate_total",
				Help:      "Events dropped because another relay sent them first.",
			},
		),
		dropped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nopu",
				Subsystem: "pool",
				Name:      "events_dropped_total",
				Help:      "Events dropped because a subscriber fell too far behind.",
			},
		),
		reconnects: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nopu",
				Subsystem: "pool",
				Name:      "reconnect_attempts_total",
				Help:      "Automatic reconnection attempts.",
			},
		),
		connected: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "nopu",
				Subsystem: "pool",
				Name:      "connected_relays",
				Help:      "Relays currently connected.",
			},
		),
	}
}
