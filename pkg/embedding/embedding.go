// Package embedding adapts external embedding providers behind a small
// interface. Providers turn free text into fixed-dimension vectors; the
// rest of the system treats vectors as opaque []float32 values.
package embedding

import "context"

// Provider produces embedding vectors for text.
type Provider interface {
	// Embed returns the embedding vector for text. The returned slice has
	// exactly Dimension() elements.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the fixed vector dimension for this provider.
	Dimension() int
}
