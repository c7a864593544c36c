package memory

import (
	"math"
	"sort"
	"time"

	"github.com/engramd/engramd/config"
)

// PatternScoreFunc returns the pattern-success factor in [0,1] for a
// memory, typically the best success rate among patterns whose trigger
// matches it. A nil func scores 0 everywhere.
type PatternScoreFunc func(*Memory) float64

// Ranker orders search candidates by a weighted sum of five factors:
// semantic similarity, access recency, access frequency, caller-assigned
// importance, and pattern success. Weights come from configuration and
// are validated to sum to 1.0 at startup.
type Ranker struct {
	cfg          config.RankingConfig
	patternScore PatternScoreFunc
}

// NewRanker creates a ranker with the given weights.
func NewRanker(cfg config.RankingConfig, patternScore PatternScoreFunc) *Ranker {
	if cfg.RecencyHalfLife <= 0 {
		cfg.RecencyHalfLife = 72 * time.Hour
	}
	return &Ranker{cfg: cfg, patternScore: patternScore}
}

// Rank fills in each candidate's Score and sorts descending. The sort is
// stable so equal scores keep their input order.
func (r *Ranker) Rank(candidates []ScoredMemory, now time.Time) []ScoredMemory {
	for i := range candidates {
		candidates[i].Score = r.score(&candidates[i], now)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

func (r *Ranker) score(c *ScoredMemory, now time.Time) float64 {
	m := c.Memory

	score := r.cfg.SimilarityWeight * clamp01(c.Similarity)
	score += r.cfg.RecencyWeight * r.recencyFactor(m, now)
	score += r.cfg.FrequencyWeight * frequencyFactor(m.AccessCount)
	score += r.cfg.ImportanceWeight * clamp01(m.Importance/10)
	if r.patternScore != nil {
		score += r.cfg.PatternWeight * clamp01(r.patternScore(m))
	}
	return score
}

// recencyFactor decays exponentially with time since last access, with
// the configured half-life. A memory accessed right now scores 1.
func (r *Ranker) recencyFactor(m *Memory, now time.Time) float64 {
	last := m.LastAccessedAt
	if last.IsZero() {
		last = m.CreatedAt
	}
	if last.IsZero() {
		return 0
	}
	age := now.Sub(last)
	if age <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * age.Seconds() / r.cfg.RecencyHalfLife.Seconds())
}

// frequencyFactor grows with access count but saturates, so runaway
// counts cannot drown out the other factors.
func frequencyFactor(count int64) float64 {
	if count <= 0 {
		return 0
	}
	l := math.Log1p(float64(count))
	return l / (l + 1)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
