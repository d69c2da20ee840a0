// Package embedding provides text embedding implementations for CareBridge.
//
// Embedder maps text to fixed-length vectors used by the knowledge store for
// cosine-similarity retrieval. Two implementations exist: an OpenAI-backed one
// and a deterministic local one used offline and in tests.
package embedding

import "context"

// Embedder maps text to a fixed-length numeric vector. Implementations must be
// deterministic for a fixed configuration: the same input always yields the
// same vector.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float64, error)
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}
