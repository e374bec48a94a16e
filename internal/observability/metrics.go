package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "cythink"

// Step outcome label values.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeFailed    = "failed"
)

// Metrics groups the counters exported by the translation pipeline.
type Metrics struct {
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	TokensUsed          prometheus.Counter
	TokensSaved         prometheus.Counter
	Promotions          prometheus.Counter
	PurgedEntries       prometheus.Counter
	TranslationFailures *prometheus.CounterVec
	StepOutcomes        *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil registerer leaves them
// unregistered, which is what most tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_hits_total",
			Help:      "Steps answered from the durable cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_misses_total",
			Help:      "Steps that required a backend call.",
		}),
		TokensUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tokens_used_total",
			Help:      "Tokens consumed by backend calls.",
		}),
		TokensSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tokens_saved_total",
			Help:      "Tokens recorded on cache entries that were reused.",
		}),
		Promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "promotions_total",
			Help:      "Pending translations promoted to the durable cache.",
		}),
		PurgedEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "purged_entries_total",
			Help:      "Durable cache entries removed by purge.",
		}),
		TranslationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "translation_failures_total",
			Help:      "Backend calls that returned an error.",
		}, []string{"client"}),
		StepOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "step_outcomes_total",
			Help:      "Terminal step states.",
		}, []string{"outcome", "source"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CacheHits,
			m.CacheMisses,
			m.TokensUsed,
			m.TokensSaved,
			m.Promotions,
			m.PurgedEntries,
			m.TranslationFailures,
			m.StepOutcomes,
		)
	}
	return m
}

// NopMetrics returns unregistered counters for components constructed without metrics.
func NopMetrics() *Metrics {
	return NewMetrics(nil)
}
