package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Retrieval outcomes. corpus_uninitialized and no_match look the same to
// callers but are counted apart.
const (
	OutcomeMatched       = "matched"
	OutcomeNoMatch       = "no_match"
	OutcomeUninitialized = "corpus_uninitialized"
	OutcomeUpstreamError = "upstream_error"
)

type Metrics struct {
	Registry          *prometheus.Registry
	RetrievalOutcomes *prometheus.CounterVec
	RetrievalLatency  prometheus.Histogram
	ComposeRoutes     *prometheus.CounterVec
	Intents           *prometheus.CounterVec
	ProviderFallbacks prometheus.Counter
	MemoryFailures    *prometheus.CounterVec
	DuplicateMessages prometheus.Counter
}

// NewMetrics registers every collector on a private registry so tests can
// build as many instances as they like.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		RetrievalOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insurebot",
			Name:      "retrieval_outcomes_total",
			Help:      "Knowledge lookups by outcome.",
		}, []string{"outcome"}),
		RetrievalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "insurebot",
			Name:      "retrieval_duration_seconds",
			Help:      "Embedding plus vector search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		ComposeRoutes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insurebot",
			Name:      "compose_routes_total",
			Help:      "Replies by composition tier.",
		}, []string{"route"}),
		Intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insurebot",
			Name:      "intents_total",
			Help:      "Classified inbound messages by intent.",
		}, []string{"intent"}),
		ProviderFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "insurebot",
			Name:      "provider_fallbacks_total",
			Help:      "Completions served by the fallback model.",
		}),
		MemoryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insurebot",
			Name:      "memory_failures_total",
			Help:      "Conversation memory operations that failed after retry.",
		}, []string{"op"}),
		DuplicateMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "insurebot",
			Name:      "duplicate_messages_total",
			Help:      "Inbound messages dropped by the dedup window.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RetrievalOutcomes,
		m.RetrievalLatency,
		m.ComposeRoutes,
		m.Intents,
		m.ProviderFallbacks,
		m.MemoryFailures,
		m.DuplicateMessages,
	)
	return m
}
