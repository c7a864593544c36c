package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initMemoryMetrics initializes save/search and storage-tier metrics.
func (m *Manager) initMemoryMetrics(cfg Config) {
	m.memorySaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_saves_total",
			Help: "Total number of memory saves by resolved type and status",
		},
		[]string{"type", "status"},
	)

	m.saveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memory_save_duration_seconds",
			Help:    "Memory save duration in seconds",
			Buckets: cfg.SaveDurationBuckets,
		},
		[]string{"status"},
	)

	m.memorySearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_searches_total",
			Help: "Total number of memory searches by degradation state",
		},
		[]string{"degraded"},
	)

	m.searchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memory_search_duration_seconds",
			Help:    "Memory search duration in seconds",
			Buckets: cfg.SearchDurationBuckets,
		},
	)

	m.registry.MustRegister(m.memorySaves)
	m.registry.MustRegister(m.saveDuration)
	m.registry.MustRegister(m.memorySearches)
	m.registry.MustRegister(m.searchDuration)
}

// RecordMemorySave records a save attempt with its resolved type and outcome.
func (m *Manager) RecordMemorySave(memType, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.memorySaves.WithLabelValues(memType, status).Inc()
	m.saveDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordMemorySearch records a search and whether it was degraded.
func (m *Manager) RecordMemorySearch(degraded bool, duration time.Duration) {
	if !m.enabled {
		return
	}
	label := "false"
	if degraded {
		label = "true"
	}
	m.memorySearches.WithLabelValues(label).Inc()
	m.searchDuration.Observe(duration.Seconds())
}

// RegisterQueueDepth exposes the write queue depth as a gauge.
func (m *Manager) RegisterQueueDepth(depth func() float64) {
	if !m.enabled {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "memory_write_queue_depth",
			Help: "Current number of writes waiting in the durable write queue",
		},
		depth,
	))
}

// RegisterCacheStats exposes cache hit and miss totals as counters backed
// by the cache's own atomics.
func (m *Manager) RegisterCacheStats(hits, misses func() float64) {
	if !m.enabled {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "memory_cache_hits_total",
			Help: "Total number of local cache hits",
		},
		hits,
	))
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "memory_cache_misses_total",
			Help: "Total number of local cache misses",
		},
		misses,
	))
}
