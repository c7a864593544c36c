package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initEmbeddingMetrics initializes embedding provider metrics.
func (m *Manager) initEmbeddingMetrics(cfg Config) {
	m.embeddingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_requests_total",
			Help: "Total number of embedding provider calls by outcome",
		},
		[]string{"status"},
	)

	m.embeddingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedding_request_duration_seconds",
			Help:    "Embedding provider call duration in seconds",
			Buckets: cfg.EmbeddingDurationBuckets,
		},
	)

	m.registry.MustRegister(m.embeddingRequests)
	m.registry.MustRegister(m.embeddingDuration)
}

// RecordEmbeddingRequest records a provider call and its outcome.
func (m *Manager) RecordEmbeddingRequest(status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.embeddingRequests.WithLabelValues(status).Inc()
	m.embeddingDuration.Observe(duration.Seconds())
}

// RegisterEmbeddingCacheStats exposes embedding cache hit and miss totals.
func (m *Manager) RegisterEmbeddingCacheStats(hits, misses func() float64) {
	if !m.enabled {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "embedding_cache_hits_total",
			Help: "Total number of embedding cache hits",
		},
		hits,
	))
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "embedding_cache_misses_total",
			Help: "Total number of embedding cache misses",
		},
		misses,
	))
}
