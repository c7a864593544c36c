package memory

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/engramd/engramd/pkg/logger"
)

const (
	redisMemoryPrefix = "engram:mem:"
	redisHashPrefix   = "engram:hash:"
	redisOpTimeout    = 2 * time.Second
)

// RedisCache is a Cache backed by Redis, for deployments where multiple
// instances should share the fast tier. Redis handles TTL expiry and
// memory-pressure eviction itself, so there is no LRU bookkeeping here.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedisCache creates a Redis-backed cache tier.
func NewRedisCache(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl, log: log}
}

// Get returns the cached memory for id.
func (c *RedisCache) Get(id string) (*Memory, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, redisMemoryPrefix+id).Bytes()
	if err != nil {
		c.misses.Add(1)
		if err != redis.Nil && c.log != nil {
			c.log.Warn("redis cache get failed", "id", id, "error", err)
		}
		return nil, false
	}

	var m Memory
	if err := json.Unmarshal(data, &m); err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &m, true
}

// Put inserts or replaces a memory.
func (c *RedisCache) Put(m *Memory) {
	if m == nil || m.ID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := json.Marshal(m)
	if err != nil {
		if c.log != nil {
			c.log.Warn("redis cache marshal failed", "id", m.ID, "error", err)
		}
		return
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, redisMemoryPrefix+m.ID, data, c.ttl)
	pipe.Set(ctx, redisHashPrefix+hashKey(m.OwnerID, ContentHash(m.Text)), m.ID, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil && c.log != nil {
		c.log.Warn("redis cache put failed", "id", m.ID, "error", err)
	}
}

// GetByContentHash returns a resident memory with the same owner and text.
func (c *RedisCache) GetByContentHash(ownerID, hash string) (*Memory, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	id, err := c.client.Get(ctx, redisHashPrefix+hashKey(ownerID, hash)).Result()
	if err != nil {
		return nil, false
	}
	return c.Get(id)
}

// Scan returns every resident memory visible under v.
func (c *RedisCache) Scan(v Visibility) []*Memory {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	var out []*Memory
	iter := c.client.Scan(ctx, 0, redisMemoryPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := c.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var m Memory
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		if v.Visible(&m) {
			out = append(out, &m)
		}
	}
	if err := iter.Err(); err != nil && c.log != nil {
		c.log.Warn("redis cache scan failed", "error", err)
	}
	return out
}

// Touch bumps access metadata on the cached copy. The read-modify-write
// runs in the background so the read path never waits on redis.
func (c *RedisCache) Touch(id string, at time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()

		data, err := c.client.Get(ctx, redisMemoryPrefix+id).Bytes()
		if err != nil {
			return
		}
		var m Memory
		if err := json.Unmarshal(data, &m); err != nil {
			return
		}
		m.AccessCount++
		m.LastAccessedAt = at
		updated, err := json.Marshal(&m)
		if err != nil {
			return
		}
		if err := c.client.Set(ctx, redisMemoryPrefix+id, updated, redis.KeepTTL).Err(); err != nil && c.log != nil {
			c.log.Warn("redis cache touch failed", "id", id, "error", err)
		}
	}()
}

// Remove drops id from the cache.
func (c *RedisCache) Remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.client.Del(ctx, redisMemoryPrefix+id).Err(); err != nil && c.log != nil {
		c.log.Warn("redis cache remove failed", "id", id, "error", err)
	}
}

// Len returns the number of resident entries.
func (c *RedisCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	var count int
	iter := c.client.Scan(ctx, 0, redisMemoryPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count
}

// Stats returns hit and miss counts.
func (c *RedisCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
