package memory

import (
	"fmt"
	"testing"
	"time"
)

func newTestMemory(id, text, owner string, memType Type) *Memory {
	return &Memory{
		ID:             id,
		Text:           text,
		Type:           memType,
		OwnerID:        owner,
		CreatedAt:      time.Now().UTC(),
		LastAccessedAt: time.Now().UTC(),
		Importance:     5,
		Embedding:      []float32{1, 0, 0},
	}
}

func TestLRUCache_PutGet(t *testing.T) {
	cache := NewLRUCache(10, 0)
	defer cache.Stop()

	m := newTestMemory("01A", "my first memory", "alice", TypePrivate)
	cache.Put(m)

	got, ok := cache.Get("01A")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Text != "my first memory" {
		t.Errorf("expected text to round-trip, got %q", got.Text)
	}

	if _, ok := cache.Get("missing"); ok {
		t.Error("expected cache miss for unknown id")
	}

	hits, misses := cache.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %d / %d", hits, misses)
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewLRUCache(3, 0)
	defer cache.Stop()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("0%d", i)
		cache.Put(newTestMemory(id, "text "+id, "alice", TypePrivate))
	}

	// Touch 00 so 01 becomes the eviction candidate.
	if _, ok := cache.Get("00"); !ok {
		t.Fatal("expected hit for 00")
	}

	cache.Put(newTestMemory("03", "text 03", "alice", TypePrivate))

	if _, ok := cache.Get("01"); ok {
		t.Error("expected 01 to be evicted")
	}
	if _, ok := cache.Get("00"); !ok {
		t.Error("expected 00 to survive eviction")
	}
	if cache.Len() != 3 {
		t.Errorf("expected len 3, got %d", cache.Len())
	}
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	cache := NewLRUCache(10, 20*time.Millisecond)
	defer cache.Stop()

	cache.Put(newTestMemory("01A", "ephemeral", "alice", TypePrivate))

	if _, ok := cache.Get("01A"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(40 * time.Millisecond)

	if _, ok := cache.Get("01A"); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestLRUCache_Scan_Visibility(t *testing.T) {
	cache := NewLRUCache(10, 0)
	defer cache.Stop()

	cache.Put(newTestMemory("01", "alice private", "alice", TypePrivate))
	cache.Put(newTestMemory("02", "bob private", "bob", TypePrivate))
	cache.Put(newTestMemory("03", "shared fact", "", TypeSystem))

	alice := cache.Scan(Visibility{OwnerID: "alice", IncludeSystem: true})
	if len(alice) != 2 {
		t.Fatalf("expected 2 visible memories for alice, got %d", len(alice))
	}
	for _, m := range alice {
		if m.Type == TypePrivate && m.OwnerID != "alice" {
			t.Errorf("scan leaked %s's private memory to alice", m.OwnerID)
		}
	}

	noSystem := cache.Scan(Visibility{OwnerID: "alice", IncludeSystem: false})
	if len(noSystem) != 1 {
		t.Fatalf("expected 1 memory without system, got %d", len(noSystem))
	}
	if noSystem[0].OwnerID != "alice" {
		t.Errorf("expected alice's memory, got owner %q", noSystem[0].OwnerID)
	}
}

func TestLRUCache_GetByContentHash(t *testing.T) {
	cache := NewLRUCache(10, 0)
	defer cache.Stop()

	m := newTestMemory("01", "my repeated note", "alice", TypePrivate)
	cache.Put(m)

	got, ok := cache.GetByContentHash("alice", ContentHash("my repeated note"))
	if !ok {
		t.Fatal("expected dedup hit for same owner and text")
	}
	if got.ID != "01" {
		t.Errorf("expected id 01, got %s", got.ID)
	}

	if _, ok := cache.GetByContentHash("bob", ContentHash("my repeated note")); ok {
		t.Error("dedup must not cross owner scope")
	}

	cache.Remove("01")
	if _, ok := cache.GetByContentHash("alice", ContentHash("my repeated note")); ok {
		t.Error("expected dedup miss after removal")
	}
}

func TestLRUCache_TouchBumpsAccessMetadata(t *testing.T) {
	cache := NewLRUCache(10, 0)
	defer cache.Stop()

	m := newTestMemory("01", "a frequently read note", "alice", TypePrivate)
	savedAt := m.LastAccessedAt
	cache.Put(m)

	at := time.Now().UTC().Add(time.Minute)
	cache.Touch("01", at)
	cache.Touch("01", at)

	got, ok := cache.Get("01")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.AccessCount != 2 {
		t.Errorf("expected access count 2, got %d", got.AccessCount)
	}
	if !got.LastAccessedAt.After(savedAt) {
		t.Errorf("expected last_accessed_at to advance past %v, got %v", savedAt, got.LastAccessedAt)
	}

	// Unknown ids are a no-op.
	cache.Touch("missing", at)
}

func TestLRUCache_PutReplaceSameID(t *testing.T) {
	cache := NewLRUCache(10, 0)
	defer cache.Stop()

	cache.Put(newTestMemory("01", "original", "alice", TypePrivate))
	updated := newTestMemory("01", "original", "alice", TypePrivate)
	updated.AccessCount = 7
	cache.Put(updated)

	got, ok := cache.Get("01")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.AccessCount != 7 {
		t.Errorf("expected replacement to win, got access count %d", got.AccessCount)
	}
	if cache.Len() != 1 {
		t.Errorf("expected single entry, got %d", cache.Len())
	}
}
