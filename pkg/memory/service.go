package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/engramd/engramd/config"
	"github.com/engramd/engramd/pkg/embedding"
	"github.com/engramd/engramd/pkg/logger"
)

const defaultImportance = 5.0

// ServiceOptions wires a Service's collaborators.
type ServiceOptions struct {
	Provider embedding.Provider
	Cache    Cache
	Durable  *DurableStore
	Queue    *WriteQueue
	Ranker   *Ranker
	Search   config.SearchConfig
	Logger   logger.Logger

	// BackfillInterval is the cadence of the embedding backfill loop.
	// Zero disables the loop.
	BackfillInterval time.Duration

	// OnSaved, when set, is called after each successful save. Used by
	// the API layer to broadcast events.
	OnSaved func(*Memory)
}

// Service orchestrates the save/search/list flows across the classifier,
// the embedding provider, and the two storage tiers.
type Service struct {
	provider embedding.Provider
	cache    Cache
	durable  *DurableStore
	queue    *WriteQueue
	ranker   *Ranker
	search   config.SearchConfig
	log      logger.Logger
	onSaved  func(*Memory)

	backfillInterval time.Duration
	stopCh           chan struct{}
	stopOnce         sync.Once
	wg               sync.WaitGroup

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates the store orchestrator.
func NewService(opts ServiceOptions) *Service {
	search := opts.Search
	if search.DefaultLimit <= 0 {
		search.DefaultLimit = 10
	}
	if search.MaxLimit <= 0 {
		search.MaxLimit = 100
	}
	if search.DurableTimeout <= 0 {
		search.DurableTimeout = 500 * time.Millisecond
	}

	return &Service{
		provider:         opts.Provider,
		cache:            opts.Cache,
		durable:          opts.Durable,
		queue:            opts.Queue,
		ranker:           opts.Ranker,
		search:           search,
		log:              opts.Logger,
		onSaved:          opts.OnSaved,
		backfillInterval: opts.BackfillInterval,
		stopCh:           make(chan struct{}),
		now:              time.Now,
	}
}

// Start launches the write queue workers and the backfill loop.
func (s *Service) Start() {
	s.queue.Start()
	if s.backfillInterval > 0 {
		s.wg.Add(1)
		go s.backfillLoop()
	}
}

// Stop shuts down background work, draining the write queue.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	s.queue.Stop()
}

// Save validates, classifies, embeds, and stores a memory. It returns
// once the memory is cache-visible; the durable write follows through the
// queue. If the embedding provider is down the memory is saved with
// embedding_pending set and picked up later by the backfill loop.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*Memory, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, &ValidationError{Field: "text", Message: "must not be empty"}
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, &ValidationError{Field: "owner_id", Message: "is required"}
	}
	importance := defaultImportance
	if req.Importance != nil {
		importance = *req.Importance
		if importance < 0 || importance > 10 {
			return nil, &ValidationError{Field: "importance", Message: "must be between 0 and 10"}
		}
	}

	memType := req.Type
	if memType == "" {
		memType = TypeAuto
	}
	lowConfidence := false
	switch memType {
	case TypePrivate, TypeSystem:
		// explicit caller type always wins
	case TypeAuto:
		cls := Classify(text)
		memType = cls.Type
		lowConfidence = !cls.Confident
	default:
		return nil, &ValidationError{Field: "type", Message: "must be private, system, or auto"}
	}

	ownerID := req.OwnerID
	if memType == TypeSystem {
		// System memories are shared; they carry no owner.
		ownerID = ""
	}

	// Identical text from the same scope within the cache window is the
	// same memory; don't double-write.
	if existing, ok := s.cache.GetByContentHash(ownerID, ContentHash(text)); ok {
		return existing.Clone(), nil
	}

	now := s.now().UTC()
	m := &Memory{
		ID:             ulid.Make().String(),
		Text:           text,
		Type:           memType,
		OwnerID:        ownerID,
		Triple:         req.Triple,
		CreatedAt:      now,
		LastAccessedAt: now,
		Importance:     importance,
		LowConfidence:  lowConfidence,
	}

	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		// Oversized text can never be embedded, now or by the backfill
		// loop; reject it instead of persisting a permanently pending
		// memory.
		if kind, ok := embedding.KindOf(err); ok && kind == embedding.KindTooLong {
			return nil, err
		}
		s.log.WarnContext(ctx, "embedding failed on save, deferring to backfill",
			"memory_id", m.ID, "error", err)
		m.EmbeddingPending = true
	} else {
		m.Embedding = vec
	}

	s.cache.Put(m)

	if err := s.queue.EnqueuePut(m); err != nil {
		// Queue saturated: fall back to a synchronous durable write so
		// the memory is not cache-only with nothing scheduled behind it.
		if perr := s.durable.Put(ctx, m); perr != nil {
			s.cache.Remove(m.ID)
			return nil, perr
		}
	}

	if s.onSaved != nil {
		s.onSaved(m.Clone())
	}
	return m.Clone(), nil
}

// Search embeds the query and fans out to both tiers, returning ranked,
// visibility-filtered results. A durable-tier failure or timeout degrades
// to cache-only results instead of failing the search.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	query := strings.TrimSpace(req.QueryText)
	if query == "" {
		return nil, &ValidationError{Field: "query_text", Message: "must not be empty"}
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, &ValidationError{Field: "owner_id", Message: "is required"}
	}

	threshold := s.search.SimilarityThreshold
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
		if threshold < 0 || threshold > 1 {
			return nil, &ValidationError{Field: "similarity_threshold", Message: "must be between 0 and 1"}
		}
	}
	limit := s.clampLimit(req.Limit)

	includeSystem := true
	if req.IncludeSystem != nil {
		includeSystem = *req.IncludeSystem
	}
	vis := Visibility{OwnerID: req.OwnerID, IncludeSystem: includeSystem}

	// No query vector, no search: this is the one embedding failure that
	// cannot degrade.
	queryVec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// Durable leg runs concurrently under its own deadline while the
	// cache leg is scanned inline.
	type durableResult struct {
		hits []ScoredMemory
		err  error
	}
	durableCh := make(chan durableResult, 1)
	durableCtx, cancel := context.WithTimeout(ctx, s.search.DurableTimeout)
	defer cancel()
	go func() {
		hits, err := s.durable.Search(durableCtx, queryVec, vis, threshold)
		durableCh <- durableResult{hits: hits, err: err}
	}()

	merged := make(map[string]ScoredMemory)
	for _, m := range s.cache.Scan(vis) {
		if m.EmbeddingPending || len(m.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(queryVec, m.Embedding)
		if sim >= threshold {
			merged[m.ID] = ScoredMemory{Memory: m.Clone(), Similarity: sim}
		}
	}

	degraded := false
	res := <-durableCh
	if res.err != nil {
		degraded = true
		s.log.WarnContext(ctx, "durable search leg failed, serving cache only", "error", res.err)
	} else {
		for _, hit := range res.hits {
			// The cache copy wins on conflict: it carries the freshest
			// access metadata.
			if _, ok := merged[hit.Memory.ID]; !ok {
				merged[hit.Memory.ID] = hit
			}
		}
	}

	candidates := make([]ScoredMemory, 0, len(merged))
	for _, hit := range merged {
		candidates = append(candidates, hit)
	}
	// Map order is random; fix it before the stable rank sort.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Memory.ID < candidates[j].Memory.ID
	})

	candidates = s.ranker.Rank(candidates, s.now())
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	// Returning a memory is an access. The cached copy is bumped in place
	// so ranking sees fresh counts; the durable bump rides the write queue
	// so the read path never blocks on storage.
	now := s.now().UTC()
	for _, hit := range candidates {
		s.cache.Touch(hit.Memory.ID, now)
		if err := s.queue.EnqueueBump(hit.Memory.ID, now); err != nil {
			s.log.WarnContext(ctx, "access bump dropped, queue full", "memory_id", hit.Memory.ID)
		}
	}

	return &SearchResult{Memories: candidates, Degraded: degraded}, nil
}

// GetAll lists visible memories most recent first, without embedding or
// ranking. When the durable tier is down it serves whatever the cache
// holds and flags the result as degraded.
func (s *Service) GetAll(ctx context.Context, req ListRequest) (*ListResult, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, &ValidationError{Field: "owner_id", Message: "is required"}
	}
	limit := s.clampLimit(req.Limit)

	includeSystem := true
	if req.IncludeSystem != nil {
		includeSystem = *req.IncludeSystem
	}
	vis := Visibility{OwnerID: req.OwnerID, IncludeSystem: includeSystem}

	listCtx, cancel := context.WithTimeout(ctx, s.search.DurableTimeout)
	defer cancel()

	memories, err := s.durable.ListRecent(listCtx, vis, limit)
	if err == nil {
		return &ListResult{Memories: memories}, nil
	}
	s.log.WarnContext(ctx, "durable list failed, serving cache only", "error", err)

	cached := s.cache.Scan(vis)
	sort.Slice(cached, func(i, j int) bool {
		return cached[i].CreatedAt.After(cached[j].CreatedAt)
	})
	if len(cached) > limit {
		cached = cached[:limit]
	}
	out := make([]*Memory, len(cached))
	for i, m := range cached {
		out[i] = m.Clone()
	}
	return &ListResult{Memories: out, Degraded: true}, nil
}

// QueueDepth exposes the write queue depth for health and metrics.
func (s *Service) QueueDepth() int {
	return s.queue.Depth()
}

// CacheStats exposes cache hit/miss counts for metrics.
func (s *Service) CacheStats() (hits, misses uint64) {
	return s.cache.Stats()
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.search.DefaultLimit
	}
	if limit > s.search.MaxLimit {
		return s.search.MaxLimit
	}
	return limit
}

// backfillLoop periodically retries embedding for memories saved while
// the provider was unavailable.
func (s *Service) backfillLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.backfillInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runBackfill()
		}
	}
}

func (s *Service) runBackfill() {
	ctx, cancel := context.WithTimeout(context.Background(), s.backfillInterval)
	defer cancel()

	pending, err := s.durable.ListPendingEmbeddings(ctx, 100)
	if err != nil {
		s.log.Warn("backfill scan failed", "error", err)
		return
	}

	for _, m := range pending {
		vec, err := s.provider.Embed(ctx, m.Text)
		if err != nil {
			if embedding.IsRetryable(err) {
				// Provider still down; leave the rest for the next tick.
				s.log.Warn("backfill embedding failed", "memory_id", m.ID, "error", err)
				return
			}
			// This memory can never embed; don't let it starve the ones
			// behind it.
			s.log.Warn("skipping unembeddable memory in backfill", "memory_id", m.ID, "error", err)
			continue
		}
		m.Embedding = vec
		m.EmbeddingPending = false
		if err := s.durable.Put(ctx, m); err != nil {
			s.log.Warn("backfill write failed", "memory_id", m.ID, "error", err)
			return
		}
		s.cache.Put(m)
		s.log.Info("backfilled embedding", "memory_id", m.ID)
	}
}
