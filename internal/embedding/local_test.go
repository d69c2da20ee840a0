package embedding

import (
	"context"
	"math"
	"testing"
)

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder(0)
	a, err := e.Embed(context.Background(), "blood pressure medication")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := e.Embed(context.Background(), "blood pressure medication")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) != DefaultLocalDimension {
		t.Fatalf("expected dimension %d, got %d", DefaultLocalDimension, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at index %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestLocalEmbedderNormalized(t *testing.T) {
	e := NewLocalEmbedder(64)
	vec, err := e.Embed(context.Background(), "asthma inhaler triggers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("expected unit vector, got squared norm %f", sum)
	}
}

func TestLocalEmbedderEmptyText(t *testing.T) {
	e := NewLocalEmbedder(32)
	vec, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero vector for empty text, got %f at index %d", v, i)
		}
	}
}

func TestLocalEmbedderBatchOrder(t *testing.T) {
	e := NewLocalEmbedder(0)
	texts := []string{"diabetes", "hypertension", "diabetes"}
	vectors, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i := range vectors[0] {
		if vectors[0][i] != vectors[2][i] {
			t.Fatal("identical inputs produced different vectors")
		}
	}
}
