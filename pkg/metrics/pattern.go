package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// initPatternMetrics initializes pattern lifecycle metrics.
func (m *Manager) initPatternMetrics(_ Config) {
	m.patternObservations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pattern_observations_total",
			Help: "Total number of trigger observations fed to the detector",
		},
	)

	m.patternTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_transitions_total",
			Help: "Total number of pattern state transitions",
		},
		[]string{"from", "to"},
	)

	m.registry.MustRegister(m.patternObservations)
	m.registry.MustRegister(m.patternTransitions)
}

// RecordPatternObservation counts one detector observation.
func (m *Manager) RecordPatternObservation() {
	if !m.enabled {
		return
	}
	m.patternObservations.Inc()
}

// RecordPatternTransition counts a state change, promotion or demotion.
func (m *Manager) RecordPatternTransition(from, to string) {
	if !m.enabled {
		return
	}
	m.patternTransitions.WithLabelValues(from, to).Inc()
}
