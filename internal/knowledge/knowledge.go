// Package knowledge provides the static retrieval corpus for CareBridge.
//
// The corpus is loaded once at startup: every document's embedding is derived
// from its text via the configured embedder, so vectors can never drift from
// their source text. Search is brute-force cosine similarity, which is plenty
// for a corpus of this size.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"carebridge/internal/embedding"
	"carebridge/internal/models"
)

// DefaultTopK is the number of documents the responder retrieves per query.
const DefaultTopK = 2

// ScoredDocument pairs a document with its similarity to a query.
type ScoredDocument struct {
	Document models.KnowledgeDocument
	Score    float64
}

// Store holds the embedded document corpus. It is safe for concurrent reads
// once loaded; AddDocument exists for offline curation and is not called on
// the request path.
type Store struct {
	mu       sync.RWMutex
	embedder embedding.Embedder
	docs     []models.KnowledgeDocument
}

// NewStore creates an empty knowledge store using the given embedder.
func NewStore(embedder embedding.Embedder) *Store {
	return &Store{embedder: embedder}
}

// Load embeds all documents in one batch and replaces the corpus.
func (s *Store) Load(ctx context.Context, docs []models.KnowledgeDocument) error {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Error("knowledge.Load: corpus embedding failed", "error", err, "count", len(docs))
		return fmt.Errorf("failed to embed corpus: %w", err)
	}
	loaded := make([]models.KnowledgeDocument, len(docs))
	for i, d := range docs {
		d.Embedding = vectors[i]
		loaded[i] = d
	}

	s.mu.Lock()
	s.docs = loaded
	s.mu.Unlock()
	slog.Info("knowledge.Load: corpus loaded", "documents", len(loaded))
	return nil
}

// AddDocument embeds and appends a single document. Offline curation only.
func (s *Store) AddDocument(ctx context.Context, doc models.KnowledgeDocument) error {
	vec, err := s.embedder.Embed(ctx, doc.Text)
	if err != nil {
		slog.Error("knowledge.AddDocument: embedding failed", "error", err, "id", doc.ID)
		return fmt.Errorf("failed to embed document %s: %w", doc.ID, err)
	}
	doc.Embedding = vec

	s.mu.Lock()
	s.docs = append(s.docs, doc)
	s.mu.Unlock()
	return nil
}

// Len returns the number of documents in the corpus.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Search returns the k documents most similar to the query vector, highest
// score first. Ties keep corpus insertion order. If the corpus holds fewer
// than k documents, all of them are returned.
func (s *Store) Search(queryVector []float64, k int) []ScoredDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]ScoredDocument, len(s.docs))
	for i, d := range s.docs {
		scored[i] = ScoredDocument{Document: d, Score: cosineSimilarity(queryVector, d.Embedding)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}

// cosineSimilarity computes the cosine of the angle between a and b.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
