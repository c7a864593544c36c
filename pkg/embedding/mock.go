package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// MockProvider produces deterministic vectors without any network calls.
// Identical text always yields the identical vector, and texts sharing
// tokens land near each other, which is enough for tests and degraded
// deployments without provider credentials.
type MockProvider struct {
	dimension int
}

// NewMockProvider creates a mock provider with the given dimension.
func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockProvider{dimension: dimension}
}

// Dimension returns the configured vector dimension.
func (m *MockProvider) Dimension() int {
	return m.dimension
}

// Embed hashes each token into vector buckets and L2-normalizes the result.
func (m *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dimension)

	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		tokens = []string{text}
	}
	for _, token := range tokens {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()
		idx := int(sum % uint64(m.dimension))
		// Second hash bit decides sign so buckets don't only accumulate.
		if (sum>>32)&1 == 0 {
			vec[idx] += 1
		} else {
			vec[idx] -= 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}
