// Package metrics exposes Prometheus collectors for the memory engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "humbbot_memory"

// Metrics holds the engine's collectors. One instance is shared by every
// session in a process.
type Metrics struct {
	EventsRecorded    *prometheus.CounterVec
	EmbeddingFailures prometheus.Counter
	PersistErrors     *prometheus.CounterVec
	AssembleDuration  prometheus.Histogram
	ContextTokens     prometheus.Histogram
	Compactions       *prometheus.CounterVec
	EventsArchived    prometheus.Counter
	HotEvents         *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	var g prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, g = r, r
	} else if gg, ok := reg.(prometheus.Gatherer); ok {
		g = gg
	}
	f := promauto.With(reg)

	return &Metrics{
		EventsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_recorded_total",
			Help:      "Memory events recorded, by event type.",
		}, []string{"type"}),
		EmbeddingFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_failures_total",
			Help:      "Embedding calls that failed, timed out or were rejected by the circuit breaker.",
		}),
		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Durable writes that failed, by operation.",
		}, []string{"op"}),
		AssembleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assemble_duration_seconds",
			Help:      "Time to assemble a context block.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		ContextTokens: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_tokens",
			Help:      "Estimated tokens in assembled context blocks.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 10),
		}),
		Compactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Compaction runs, by trigger.",
		}, []string{"trigger"}),
		EventsArchived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_archived_total",
			Help:      "Events folded into archive summaries.",
		}),
		HotEvents: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hot_events",
			Help:      "Events in the hot working set, by session.",
		}, []string{"session"}),
		gatherer: g,
	}
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
