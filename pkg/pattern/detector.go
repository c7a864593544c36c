package pattern

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/engramd/engramd/config"
	"github.com/engramd/engramd/pkg/logger"
	"github.com/engramd/engramd/pkg/memory"
)

// TransitionFunc is notified after a pattern changes state. Used by the
// API layer to broadcast promotion and demotion events.
type TransitionFunc func(p *Pattern, from, to State)

// Detector learns recurring trigger/action patterns. All patterns live in
// an in-memory index rebuilt from the durable table on Start; writes go
// through to the table.
type Detector struct {
	cfg          config.PatternConfig
	store        *Store
	log          logger.Logger
	onTransition TransitionFunc

	mu       sync.RWMutex
	patterns map[string]*Pattern

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// now is swappable for tests.
	now func() time.Time
}

// NewDetector creates a detector over the given pattern table.
func NewDetector(cfg config.PatternConfig, store *Store, log logger.Logger) *Detector {
	return &Detector{
		cfg:      cfg,
		store:    store,
		log:      log,
		patterns: make(map[string]*Pattern),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// OnTransition registers the state-change callback. Must be called before
// Start.
func (d *Detector) OnTransition(fn TransitionFunc) {
	d.onTransition = fn
}

// Start rebuilds the trigger index from the durable table and launches
// the window cleanup loop.
func (d *Detector) Start(ctx context.Context) error {
	stored, err := d.store.List(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	for _, p := range stored {
		d.patterns[p.ID] = p
	}
	d.mu.Unlock()
	d.log.Info("pattern index rebuilt", "patterns", len(stored))

	if d.cfg.CleanupInterval > 0 {
		d.wg.Add(1)
		go d.cleanupLoop()
	}
	return nil
}

// Stop terminates the cleanup loop.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.wg.Wait()
}

// Observe records a sighting of trigger with the given action sequence.
// A trigger within the detection threshold of an existing pattern counts
// as a recurrence of that pattern; otherwise a new tracked pattern is
// created. Returns the affected pattern.
func (d *Detector) Observe(ctx context.Context, trigger []float32, actions []string) (*Pattern, error) {
	now := d.now().UTC()

	d.mu.Lock()
	p := d.bestMatchLocked(trigger)
	if p == nil {
		p = &Pattern{
			ID:               ulid.Make().String(),
			TriggerEmbedding: append([]float32(nil), trigger...),
			ActionSequence:   append([]string(nil), actions...),
			State:            StateTracked,
		}
		d.patterns[p.ID] = p
	}
	from := p.State
	p.recordOccurrence(now, d.cfg.OccurrenceWindow)
	to := p.transition(now, d.cfg)
	out := p.Clone()
	d.mu.Unlock()

	if err := d.store.Put(ctx, out); err != nil {
		return nil, err
	}
	d.notify(out, from, to)
	return out, nil
}

// RecordApplication reports an application outcome for a pattern and
// re-evaluates its state. Promotion to auto-applying and demotion both
// happen here.
func (d *Detector) RecordApplication(ctx context.Context, id string, success bool) (*Pattern, error) {
	now := d.now().UTC()

	d.mu.Lock()
	p, ok := d.patterns[id]
	if !ok {
		d.mu.Unlock()
		return nil, &memory.NotFoundError{ID: id}
	}
	from := p.State
	// Applying a pattern is a sighting of its trigger too. Counting it
	// here also keeps occurrence_count at or above success_count.
	p.recordOccurrence(now, d.cfg.OccurrenceWindow)
	p.recordOutcome(success)
	to := p.transition(now, d.cfg)
	out := p.Clone()
	d.mu.Unlock()

	if err := d.store.Put(ctx, out); err != nil {
		return nil, err
	}
	d.notify(out, from, to)
	return out, nil
}

// Match returns the pattern whose trigger is closest to trigger, if any
// pattern clears the detection threshold.
func (d *Detector) Match(_ context.Context, trigger []float32) (*Pattern, bool) {
	d.mu.RLock()
	p := d.bestMatchLocked(trigger)
	d.mu.RUnlock()
	if p == nil {
		return nil, false
	}
	return p.Clone(), true
}

// List returns all known patterns ordered by ID.
func (d *Detector) List(_ context.Context) []*Pattern {
	d.mu.RLock()
	out := make([]*Pattern, 0, len(d.patterns))
	for _, p := range d.patterns {
		out = append(out, p.Clone())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ScoreMemory returns the success rate of the best pattern matching the
// memory's embedding, or 0 when nothing clears the detection threshold.
// Plugs into the ranking engine as its pattern factor.
func (d *Detector) ScoreMemory(m *memory.Memory) float64 {
	if m == nil || len(m.Embedding) == 0 {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	p := d.bestMatchLocked(m.Embedding)
	if p == nil {
		return 0
	}
	return p.SuccessRate
}

// bestMatchLocked returns the pattern with the highest trigger similarity
// at or above the detection threshold. Caller holds d.mu.
func (d *Detector) bestMatchLocked(trigger []float32) *Pattern {
	var best *Pattern
	bestSim := d.cfg.DetectionThreshold
	for _, p := range d.patterns {
		sim := memory.CosineSimilarity(trigger, p.TriggerEmbedding)
		if sim > bestSim || (best == nil && sim >= bestSim) {
			best = p
			bestSim = sim
		}
	}
	return best
}

// cleanupLoop periodically prunes occurrence windows. Candidates whose
// window emptied fall back to tracked, and demoted patterns return to
// tracked to earn promotion again.
func (d *Detector) cleanupLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.runCleanup()
		}
	}
}

func (d *Detector) runCleanup() {
	now := d.now().UTC()
	type change struct {
		p        *Pattern
		from, to State
	}
	var changed []change

	d.mu.Lock()
	for _, p := range d.patterns {
		from := p.State
		p.pruneOccurrences(now, d.cfg.OccurrenceWindow)
		switch {
		case p.State == StateDemoted:
			p.State = StateTracked
		case p.State == StateCandidate && len(p.Occurrences) < d.cfg.MinOccurrences:
			p.State = StateTracked
		}
		if p.State != from {
			changed = append(changed, change{p: p.Clone(), from: from, to: p.State})
		}
	}
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, c := range changed {
		if err := d.store.Put(ctx, c.p); err != nil {
			d.log.Warn("pattern cleanup write failed", "pattern_id", c.p.ID, "error", err)
			continue
		}
		d.notify(c.p, c.from, c.to)
	}
}

func (d *Detector) notify(p *Pattern, from, to State) {
	if from == to || d.onTransition == nil {
		return
	}
	d.onTransition(p, from, to)
}
