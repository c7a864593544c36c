// Package pattern detects recurring trigger/action sequences and promotes
// reliable ones to auto-applicable workflows through an explicit state
// machine.
package pattern

import (
	"time"

	"github.com/engramd/engramd/config"
)

// State is a pattern's position in the promotion lifecycle.
type State string

const (
	// StateTracked is the entry state: the trigger has been seen but not
	// often enough to act on.
	StateTracked State = "tracked"

	// StateCandidate means the trigger recurred enough inside the rolling
	// occurrence window to start counting application outcomes.
	StateCandidate State = "candidate"

	// StateAutoApplying means the pattern has proven itself and may be
	// applied without asking.
	StateAutoApplying State = "auto_applying"

	// StateDemoted means a previously auto-applying pattern fell below the
	// success threshold. The cleanup loop returns it to tracked.
	StateDemoted State = "demoted"
)

// outcomeWindowSize bounds the rolling window of application outcomes the
// success rate is computed over.
const outcomeWindowSize = 20

// Pattern is a learned trigger/action association.
type Pattern struct {
	ID               string    `json:"id"`
	TriggerEmbedding []float32 `json:"trigger_embedding"`
	ActionSequence   []string  `json:"action_sequence"`

	State           State     `json:"state"`
	OccurrenceCount int64     `json:"occurrence_count"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`

	ApplicationCount int64   `json:"application_count"`
	SuccessCount     int64   `json:"success_count"`
	SuccessRate      float64 `json:"success_rate"`
	AutoApply        bool    `json:"auto_apply"`

	// Occurrences is the rolling window of recent sightings; entries
	// older than the configured occurrence window are pruned.
	Occurrences []time.Time `json:"occurrences"`

	// RecentOutcomes is the rolling window the success rate is computed
	// over, newest last.
	RecentOutcomes []bool `json:"recent_outcomes"`
}

// Clone returns a deep copy.
func (p *Pattern) Clone() *Pattern {
	if p == nil {
		return nil
	}
	cp := *p
	if p.TriggerEmbedding != nil {
		cp.TriggerEmbedding = append([]float32(nil), p.TriggerEmbedding...)
	}
	if p.ActionSequence != nil {
		cp.ActionSequence = append([]string(nil), p.ActionSequence...)
	}
	if p.Occurrences != nil {
		cp.Occurrences = append([]time.Time(nil), p.Occurrences...)
	}
	if p.RecentOutcomes != nil {
		cp.RecentOutcomes = append([]bool(nil), p.RecentOutcomes...)
	}
	return &cp
}

// recordOccurrence appends a sighting and prunes the window.
func (p *Pattern) recordOccurrence(at time.Time, window time.Duration) {
	p.OccurrenceCount++
	p.LastSeenAt = at
	if p.FirstSeenAt.IsZero() {
		p.FirstSeenAt = at
	}
	p.Occurrences = append(p.Occurrences, at)
	p.pruneOccurrences(at, window)
}

func (p *Pattern) pruneOccurrences(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	kept := p.Occurrences[:0]
	for _, t := range p.Occurrences {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	p.Occurrences = kept
}

// recordOutcome appends an application outcome and recomputes the rolling
// success rate.
func (p *Pattern) recordOutcome(success bool) {
	p.ApplicationCount++
	if success {
		p.SuccessCount++
	}
	p.RecentOutcomes = append(p.RecentOutcomes, success)
	if len(p.RecentOutcomes) > outcomeWindowSize {
		p.RecentOutcomes = p.RecentOutcomes[len(p.RecentOutcomes)-outcomeWindowSize:]
	}

	successes := 0
	for _, ok := range p.RecentOutcomes {
		if ok {
			successes++
		}
	}
	p.SuccessRate = float64(successes) / float64(len(p.RecentOutcomes))
}

// transition evaluates the guard conditions and moves the pattern to its
// next state. It is the single place promotion and demotion happen.
func (p *Pattern) transition(now time.Time, cfg config.PatternConfig) State {
	p.pruneOccurrences(now, cfg.OccurrenceWindow)

	switch p.State {
	case StateTracked:
		if len(p.Occurrences) >= cfg.MinOccurrences {
			p.State = StateCandidate
		}
	case StateCandidate:
		if len(p.Occurrences) < cfg.MinOccurrences {
			p.State = StateTracked
			break
		}
		if p.ApplicationCount >= int64(cfg.MinUsages) && p.SuccessRate > cfg.SuccessThreshold {
			p.State = StateAutoApplying
			p.AutoApply = true
		}
	case StateAutoApplying:
		if p.SuccessRate <= cfg.SuccessThreshold {
			p.State = StateDemoted
			p.AutoApply = false
		}
	case StateDemoted:
		// Demotion is sticky until the cleanup loop resets it; nothing
		// to evaluate here.
	}
	return p.State
}
