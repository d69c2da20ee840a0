package embedding

import (
	"context"

	"carebridge/internal/genai"
)

// OpenAIEmbedder adapts the genai client to the Embedder interface.
type OpenAIEmbedder struct {
	client genai.ClientInterface
}

// NewOpenAIEmbedder wraps a genai client as an Embedder.
func NewOpenAIEmbedder(client genai.ClientInterface) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client}
}

// Embed returns the embedding vector for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return e.client.Embed(ctx, text)
}

// EmbedBatch returns one embedding vector per input text.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	return e.client.EmbedBatch(ctx, texts)
}
