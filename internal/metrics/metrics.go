// Package metrics exposes Prometheus instrumentation for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tapewatch"

// Metrics holds the collectors for a single engine instance. Each instance
// owns its registry so parallel engines (and tests) never collide on
// registration.
type Metrics struct {
	Registry *prometheus.Registry

	// MessagesTotal counts processed feed messages by type.
	MessagesTotal *prometheus.CounterVec

	// MessagesDropped counts feed messages discarded before processing.
	MessagesDropped prometheus.Counter

	// ReconnectsTotal counts feed reconnect attempts.
	ReconnectsTotal prometheus.Counter

	// CacheSize tracks the number of entries per cache.
	CacheSize *prometheus.GaugeVec

	// CacheEvictions counts entries evicted per cache.
	CacheEvictions *prometheus.CounterVec

	// NotificationsTotal counts subscriber notifications delivered.
	NotificationsTotal prometheus.Counter

	// PagesLoaded counts backfill pages merged into the cache.
	PagesLoaded prometheus.Counter
}

// New builds a Metrics with all collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "messages_total",
				Help:      "Total feed messages processed by type",
			},
			[]string{"type"},
		),

		MessagesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "messages_dropped_total",
				Help:      "Feed messages discarded before processing",
			},
		),

		ReconnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "reconnects_total",
				Help:      "Feed reconnect attempts",
			},
		),

		CacheSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Current entries per cache",
			},
			[]string{"cache"},
		),

		CacheEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Entries evicted per cache",
			},
			[]string{"cache"},
		),

		NotificationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "notifications_total",
				Help:      "Subscriber notifications delivered",
			},
		),

		PagesLoaded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "pages_loaded_total",
				Help:      "Backfill pages merged into the record cache",
			},
		),
	}
}
