package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// CachedProvider wraps a Provider with a TTL cache keyed by content hash.
// Identical text never hits the upstream provider twice within the TTL.
type CachedProvider struct {
	inner Provider
	cache *ristretto.Cache[string, []float32]
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedProvider wraps inner with a ristretto cache holding up to
// maxEntries vectors for ttl each.
func NewCachedProvider(inner Provider, maxEntries int64, ttl time.Duration) (*CachedProvider, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &CachedProvider{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}, nil
}

// Dimension returns the wrapped provider's dimension.
func (c *CachedProvider) Dimension() int {
	return c.inner.Dimension()
}

// Embed returns a cached vector when available, otherwise delegates to the
// wrapped provider and caches the result.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)

	if vec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.SetWithTTL(key, vec, 1, c.ttl)
	return vec, nil
}

// Stats returns cache hit and miss counts.
func (c *CachedProvider) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Wait blocks until pending cache writes are applied. Test helper.
func (c *CachedProvider) Wait() {
	c.cache.Wait()
}

// Close releases cache resources.
func (c *CachedProvider) Close() {
	c.cache.Close()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
