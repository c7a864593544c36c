package memory

import (
	"container/list"
	"sync"
	"time"
)

// Cache is the fast tier of the store. It is bounded, never authoritative,
// and safe for concurrent use. Implementations exist for in-process LRU
// and Redis so deployments can swap the backend.
type Cache interface {
	// Get returns the cached memory for id, bumping its recency.
	Get(id string) (*Memory, bool)

	// Put inserts or replaces a memory, evicting the least recently used
	// entry when full.
	Put(m *Memory)

	// GetByContentHash returns a resident memory with the same owner and
	// content hash, for save-path deduplication.
	GetByContentHash(ownerID, hash string) (*Memory, bool)

	// Scan returns every resident, unexpired memory visible under v.
	Scan(v Visibility) []*Memory

	// Touch bumps access metadata on the resident copy of id, if any, so
	// ranking sees fresh counts before the durable bump lands.
	Touch(id string, at time.Time)

	// Remove drops id from the cache.
	Remove(id string)

	// Len returns the number of resident entries.
	Len() int

	// Stats returns hit and miss counts.
	Stats() (hits, misses uint64)
}

// cacheEntry wraps a memory with its expiry. Entries are advisory only;
// the durable tier holds the authoritative copy.
type cacheEntry struct {
	memory    *Memory
	expiresAt time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// LRUCache is a bounded in-process cache with TTL expiry and LRU eviction.
type LRUCache struct {
	mu       sync.RWMutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	byHash   map[string]string // ownerID+"\x00"+contentHash -> memory id
	order    *list.List        // front = most recently used

	hits   uint64
	misses uint64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLRUCache creates a cache holding up to capacity memories for ttl
// each. A background sweep drops expired entries; Stop shuts it down.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 1000
	}
	c := &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		byHash:   make(map[string]string),
		order:    list.New(),
		stopCh:   make(chan struct{}),
	}
	if ttl > 0 {
		go c.sweepLoop()
	}
	return c
}

// Get returns the cached memory for id.
func (c *LRUCache) Get(id string) (*Memory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if entry.expired(time.Now()) {
		c.removeElement(elem)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.memory, true
}

// Put inserts or replaces a memory.
func (c *LRUCache) Put(m *Memory) {
	if m == nil || m.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{memory: m}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}

	if elem, ok := c.items[m.ID]; ok {
		old := elem.Value.(*cacheEntry)
		delete(c.byHash, hashKey(old.memory.OwnerID, ContentHash(old.memory.Text)))
		elem.Value = entry
		c.order.MoveToFront(elem)
	} else {
		if c.order.Len() >= c.capacity {
			c.evictOldest()
		}
		c.items[m.ID] = c.order.PushFront(entry)
	}
	c.byHash[hashKey(m.OwnerID, ContentHash(m.Text))] = m.ID
}

// GetByContentHash returns a resident memory with the same owner and text.
func (c *LRUCache) GetByContentHash(ownerID, hash string) (*Memory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byHash[hashKey(ownerID, hash)]
	if !ok {
		return nil, false
	}
	elem, ok := c.items[id]
	if !ok {
		delete(c.byHash, hashKey(ownerID, hash))
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if entry.expired(time.Now()) {
		c.removeElement(elem)
		return nil, false
	}
	return entry.memory, true
}

// Scan returns every resident, unexpired memory visible under v.
func (c *LRUCache) Scan(v Visibility) []*Memory {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	var out []*Memory
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*cacheEntry)
		if entry.expired(now) {
			continue
		}
		if v.Visible(entry.memory) {
			out = append(out, entry.memory)
		}
	}
	return out
}

// Touch bumps access metadata on the resident copy of id.
func (c *LRUCache) Touch(id string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		return
	}
	entry := elem.Value.(*cacheEntry)
	if entry.expired(time.Now()) {
		return
	}
	entry.memory.AccessCount++
	entry.memory.LastAccessedAt = at
	c.order.MoveToFront(elem)
}

// Remove drops id from the cache.
func (c *LRUCache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[id]; ok {
		c.removeElement(elem)
	}
}

// Len returns the number of resident entries.
func (c *LRUCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Stats returns hit and miss counts.
func (c *LRUCache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// HitRate returns the cache hit rate in [0,1].
func (c *LRUCache) HitRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// Stop terminates the background sweep.
func (c *LRUCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *LRUCache) sweepLoop() {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *LRUCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expired []*list.Element
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*cacheEntry).expired(now) {
			expired = append(expired, elem)
		}
	}
	for _, elem := range expired {
		c.removeElement(elem)
	}
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *LRUCache) evictOldest() {
	if elem := c.order.Back(); elem != nil {
		c.removeElement(elem)
	}
}

// removeElement drops an element from all indexes. Caller holds the lock.
func (c *LRUCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.items, entry.memory.ID)
	delete(c.byHash, hashKey(entry.memory.OwnerID, ContentHash(entry.memory.Text)))
}

func hashKey(ownerID, hash string) string {
	return ownerID + "\x00" + hash
}
