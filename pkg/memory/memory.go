// Package memory implements the dual-tier semantic memory store: an
// in-process cache tier over a durable BadgerDB tier, with asynchronous
// durable writes, multi-factor ranked retrieval, and a heuristic
// private/system classifier.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Type distinguishes user-scoped memories from shared system memories.
type Type string

const (
	// TypePrivate memories belong to a single owner and are never visible
	// to anyone else.
	TypePrivate Type = "private"

	// TypeSystem memories are shared operational knowledge with no owner.
	TypeSystem Type = "system"

	// TypeAuto asks the classifier to decide. Only valid on save requests,
	// never stored.
	TypeAuto Type = "auto"
)

// Triple is an optional subject-predicate-object annotation extracted
// from the memory text.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// Memory is a single remembered fact. Text is immutable after creation;
// only access metadata changes afterwards.
type Memory struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Type Type   `json:"type"`

	// OwnerID is required for private memories and empty for system ones.
	OwnerID string `json:"owner_id,omitempty"`

	// Embedding is the semantic vector for Text. Empty while
	// EmbeddingPending is set.
	Embedding []float32 `json:"embedding,omitempty"`

	Triple *Triple `json:"triple,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int64     `json:"access_count"`

	// Importance is a caller-assigned weight in [0,10].
	Importance float64 `json:"importance"`

	// EmbeddingPending marks a memory saved while the embedding provider
	// was unavailable. Excluded from similarity search until backfilled.
	EmbeddingPending bool `json:"embedding_pending,omitempty"`

	// LowConfidence marks a memory whose type came from a weak classifier
	// signal. Audit marker only.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// ContentHash returns a stable hash of the memory text, used for
// owner-scoped deduplication.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy so callers can mutate metadata without
// racing readers.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	out := *m
	if m.Embedding != nil {
		out.Embedding = make([]float32, len(m.Embedding))
		copy(out.Embedding, m.Embedding)
	}
	if m.Triple != nil {
		t := *m.Triple
		out.Triple = &t
	}
	return &out
}

// Visibility describes which memories a read may return.
type Visibility struct {
	// OwnerID scopes private results. Empty means no private results.
	OwnerID string

	// IncludeSystem includes shared system memories.
	IncludeSystem bool
}

// Visible reports whether m may be returned under v.
func (v Visibility) Visible(m *Memory) bool {
	switch m.Type {
	case TypePrivate:
		return v.OwnerID != "" && m.OwnerID == v.OwnerID
	case TypeSystem:
		return v.IncludeSystem
	default:
		return false
	}
}

// SaveRequest is the input to Service.Save.
type SaveRequest struct {
	Text    string  `json:"text"`
	OwnerID string  `json:"owner_id"`
	Type    Type    `json:"type,omitempty"`
	Triple  *Triple `json:"triple,omitempty"`

	// Importance defaults to 5 when nil.
	Importance *float64 `json:"importance,omitempty"`
}

// SearchRequest is the input to Service.Search.
type SearchRequest struct {
	QueryText string `json:"query_text"`
	OwnerID   string `json:"owner_id"`

	// IncludeSystem defaults to true when nil.
	IncludeSystem *bool `json:"include_system,omitempty"`

	// SimilarityThreshold overrides the configured default when set.
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`

	// Limit caps results; zero means the configured default.
	Limit int `json:"limit,omitempty"`
}

// ScoredMemory is a search hit with its raw similarity and final
// multi-factor score.
type ScoredMemory struct {
	Memory     *Memory `json:"memory"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}

// SearchResult is the output of Service.Search.
type SearchResult struct {
	Memories []ScoredMemory `json:"memories"`

	// Degraded is set when the durable tier could not contribute and the
	// results came from the cache alone.
	Degraded bool `json:"degraded"`
}

// ListRequest is the input to Service.GetAll.
type ListRequest struct {
	OwnerID       string `json:"owner_id"`
	IncludeSystem *bool  `json:"include_system,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// ListResult is the output of Service.GetAll, most recent first.
type ListResult struct {
	Memories []*Memory `json:"memories"`
	Degraded bool      `json:"degraded"`
}
