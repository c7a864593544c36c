package memory

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/engramd/engramd/config"
	"github.com/engramd/engramd/pkg/logger"
)

func setupDurable(t *testing.T) *DurableStore {
	t.Helper()

	store, err := NewDurableStore(config.DurableConfig{
		Path:       t.TempDir(),
		SyncWrites: false,
	}, testLogger())
	if err != nil {
		t.Fatalf("failed to open durable store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close durable store: %v", err)
		}
	})
	return store
}

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "stderr"})
}

func ulidAt(tm time.Time) string {
	return ulid.MustNew(ulid.Timestamp(tm), ulid.DefaultEntropy()).String()
}

func TestDurableStore_PutGet(t *testing.T) {
	store := setupDurable(t)
	ctx := context.Background()

	m := newTestMemory(ulidAt(time.Now()), "durable round trip", "alice", TypePrivate)
	m.Triple = &Triple{Subject: "alice", Predicate: "prefers", Object: "tea"}

	if err := store.Put(ctx, m); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := store.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Text != m.Text || got.OwnerID != m.OwnerID || got.Type != m.Type {
		t.Errorf("memory did not round-trip: %+v", got)
	}
	if got.Triple == nil || got.Triple.Object != "tea" {
		t.Errorf("triple did not round-trip: %+v", got.Triple)
	}
	if len(got.Embedding) != len(m.Embedding) {
		t.Errorf("embedding did not round-trip: %d elements", len(got.Embedding))
	}
}

func TestDurableStore_GetNotFound(t *testing.T) {
	store := setupDurable(t)

	_, err := store.Get(context.Background(), "01MISSING")
	if err == nil {
		t.Fatal("expected error for missing memory")
	}
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %T: %v", err, err)
	}
}

func TestDurableStore_Search_ScopeIsolation(t *testing.T) {
	store := setupDurable(t)
	ctx := context.Background()
	now := time.Now()

	aliceMem := newTestMemory(ulidAt(now), "alice secret", "alice", TypePrivate)
	aliceMem.Embedding = []float32{1, 0, 0}
	bobMem := newTestMemory(ulidAt(now), "bob secret", "bob", TypePrivate)
	bobMem.Embedding = []float32{1, 0, 0}
	sysMem := newTestMemory(ulidAt(now), "shared fact", "", TypeSystem)
	sysMem.Embedding = []float32{1, 0, 0}

	for _, m := range []*Memory{aliceMem, bobMem, sysMem} {
		if err := store.Put(ctx, m); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}

	query := []float32{1, 0, 0}
	hits, err := store.Search(ctx, query, Visibility{OwnerID: "alice", IncludeSystem: true}, 0.5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if len(hits) != 2 {
		t.Fatalf("expected 2 hits for alice, got %d", len(hits))
	}
	for _, hit := range hits {
		if hit.Memory.ID == bobMem.ID {
			t.Error("search returned bob's private memory to alice")
		}
	}

	// Same query without system scope.
	hits, err = store.Search(ctx, query, Visibility{OwnerID: "alice", IncludeSystem: false}, 0.5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Memory.ID != aliceMem.ID {
		t.Errorf("expected only alice's memory, got %d hits", len(hits))
	}
}

func TestDurableStore_Search_Threshold(t *testing.T) {
	store := setupDurable(t)
	ctx := context.Background()

	close1 := newTestMemory(ulidAt(time.Now()), "close match", "alice", TypePrivate)
	close1.Embedding = []float32{1, 0, 0}
	far := newTestMemory(ulidAt(time.Now()), "far match", "alice", TypePrivate)
	far.Embedding = []float32{0, 1, 0}

	for _, m := range []*Memory{close1, far} {
		if err := store.Put(ctx, m); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}

	hits, err := store.Search(ctx, []float32{1, 0, 0}, Visibility{OwnerID: "alice"}, 0.7)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit above threshold, got %d", len(hits))
	}
	if hits[0].Memory.ID != close1.ID {
		t.Errorf("expected close match, got %s", hits[0].Memory.Text)
	}
	if hits[0].Similarity < 0.99 {
		t.Errorf("expected similarity ~1.0, got %f", hits[0].Similarity)
	}
}

func TestDurableStore_Search_SkipsPendingEmbeddings(t *testing.T) {
	store := setupDurable(t)
	ctx := context.Background()

	pending := newTestMemory(ulidAt(time.Now()), "pending memory", "alice", TypePrivate)
	pending.Embedding = nil
	pending.EmbeddingPending = true

	if err := store.Put(ctx, pending); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	hits, err := store.Search(ctx, []float32{1, 0, 0}, Visibility{OwnerID: "alice"}, 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("pending memories must not appear in search, got %d hits", len(hits))
	}
}

func TestDurableStore_ListRecent_OrderAndLimit(t *testing.T) {
	store := setupDurable(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		id := ulidAt(base.Add(time.Duration(i) * time.Minute))
		ids = append(ids, id)
		m := newTestMemory(id, "memory", "alice", TypePrivate)
		m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Put(ctx, m); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}

	got, err := store.ListRecent(ctx, Visibility{OwnerID: "alice"}, 3)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 memories, got %d", len(got))
	}
	// Most recent first.
	for i, want := range []string{ids[4], ids[3], ids[2]} {
		if got[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
}

func TestDurableStore_ListPendingEmbeddings(t *testing.T) {
	store := setupDurable(t)
	ctx := context.Background()

	ready := newTestMemory(ulidAt(time.Now()), "embedded", "alice", TypePrivate)
	pending := newTestMemory(ulidAt(time.Now()), "not embedded", "alice", TypePrivate)
	pending.Embedding = nil
	pending.EmbeddingPending = true

	for _, m := range []*Memory{ready, pending} {
		if err := store.Put(ctx, m); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}

	got, err := store.ListPendingEmbeddings(ctx, 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != pending.ID {
		t.Fatalf("expected only the pending memory, got %d", len(got))
	}
}

func TestDurableStore_BumpAccess(t *testing.T) {
	store := setupDurable(t)
	ctx := context.Background()

	m := newTestMemory(ulidAt(time.Now()), "bump me", "alice", TypePrivate)
	if err := store.Put(ctx, m); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	at := time.Now().Add(time.Minute).UTC()
	if err := store.BumpAccess(ctx, m.ID, at); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	if err := store.BumpAccess(ctx, m.ID, at.Add(time.Minute)); err != nil {
		t.Fatalf("bump failed: %v", err)
	}

	got, err := store.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.AccessCount != 2 {
		t.Errorf("expected access count 2, got %d", got.AccessCount)
	}
	if !got.LastAccessedAt.After(m.LastAccessedAt) {
		t.Error("expected last access time to advance")
	}

	if err := store.BumpAccess(ctx, "01MISSING", at); !IsNotFound(err) {
		t.Errorf("expected NotFoundError for missing memory, got %v", err)
	}
}
