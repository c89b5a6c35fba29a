package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"document-qa/internal/models"
)

type mockEmbedder struct {
	OnEmbedDocuments func(ctx context.Context, texts []string) ([][]float32, error)
	calls            [][]string
}

func (m *mockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls = append(m.calls, texts)
	return m.OnEmbedDocuments(ctx, texts)
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vs, err := m.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func makeChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{Content: fmt.Sprintf("chunk-%d", i), PageNumber: 1, ChunkID: i + 1}
	}
	return chunks
}

func lengthVectors(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out
}

func TestGenerateEmbeddingsBatches(t *testing.T) {
	m := &mockEmbedder{OnEmbedDocuments: func(_ context.Context, texts []string) ([][]float32, error) {
		return lengthVectors(texts), nil
	}}
	got, err := GenerateEmbeddings(context.Background(), m, makeChunks(7), BatchOptions{BatchSize: 3, Model: "test-model"})
	if err != nil {
		t.Fatalf("GenerateEmbeddings() error = %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("got %d embeddings, want 7", len(got))
	}
	if len(m.calls) != 3 {
		t.Errorf("provider called %d times, want 3 batches", len(m.calls))
	}
	seen := map[string]bool{}
	for i, ce := range got {
		if ce.Chunk.Content != fmt.Sprintf("chunk-%d", i) {
			t.Errorf("embedding %d belongs to %q", i, ce.Chunk.Content)
		}
		if ce.EmbeddingModel != "test-model" {
			t.Errorf("embedding model = %q", ce.EmbeddingModel)
		}
		if ce.ID == "" || seen[ce.ID] {
			t.Errorf("embedding %d has empty or duplicate id %q", i, ce.ID)
		}
		seen[ce.ID] = true
	}
}

func TestGenerateEmbeddingsReportsFailingChunk(t *testing.T) {
	cause := errors.New("quota exceeded")
	m := &mockEmbedder{OnEmbedDocuments: func(_ context.Context, texts []string) ([][]float32, error) {
		for _, t := range texts {
			if t == "chunk-4" {
				return nil, cause
			}
		}
		return lengthVectors(texts), nil
	}}

	_, err := GenerateEmbeddings(context.Background(), m, makeChunks(6), BatchOptions{BatchSize: 3})
	if !errors.Is(err, models.ErrEmbedding) {
		t.Fatalf("error = %v, want ErrEmbedding", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error = %v, want to wrap the provider cause", err)
	}
	var embErr *models.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("error %T is not an EmbeddingError", err)
	}
	if embErr.Index != 4 {
		t.Errorf("failing index = %d, want 4", embErr.Index)
	}
	if !strings.Contains(err.Error(), "chunk 4") {
		t.Errorf("error message %q does not name the chunk", err.Error())
	}
}

func TestGenerateEmbeddingsShortResponse(t *testing.T) {
	m := &mockEmbedder{OnEmbedDocuments: func(_ context.Context, texts []string) ([][]float32, error) {
		if len(texts) > 1 {
			return lengthVectors(texts[:1]), nil
		}
		return lengthVectors(texts), nil
	}}
	got, err := GenerateEmbeddings(context.Background(), m, makeChunks(4), BatchOptions{BatchSize: 4})
	if err != nil {
		t.Fatalf("GenerateEmbeddings() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d embeddings, want 4 after per-chunk fallback", len(got))
	}
}

func TestGenerateEmbeddingsEmpty(t *testing.T) {
	m := &mockEmbedder{OnEmbedDocuments: func(context.Context, []string) ([][]float32, error) {
		t.Fatal("provider should not be called")
		return nil, nil
	}}
	got, err := GenerateEmbeddings(context.Background(), m, nil, BatchOptions{BatchSize: 10})
	if err != nil || got != nil {
		t.Fatalf("GenerateEmbeddings(nil) = %v, %v", got, err)
	}
}
