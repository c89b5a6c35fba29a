package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-qa/internal/helper"
	"document-qa/internal/models"
)

// BatchOptions controls GenerateEmbeddings.
type BatchOptions struct {
	BatchSize int
	// Model is recorded with every embedding.
	Model  string
	Policy helper.RetryPolicy
}

// GenerateEmbeddings embeds chunks in batches. When a batch fails its chunks
// are retried one at a time so the error can name the failing chunk; the
// returned error is then a *models.EmbeddingError.
func GenerateEmbeddings(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, opts BatchOptions) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}
	size := opts.BatchSize
	if size <= 0 {
		size = len(chunks)
	}

	out := make([]models.ChunkEmbedding, 0, len(chunks))
	for start := 0; start < len(chunks); start += size {
		end := min(start+size, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		vectors, err := helper.Do(ctx, opts.Policy, "embed batch", func(ctx context.Context) ([][]float32, error) {
			return embedder.EmbedDocuments(ctx, texts)
		})
		if err == nil && len(vectors) != len(texts) {
			err = fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts))
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, &models.EmbeddingError{Index: start, Err: err}
			}
			log.Warn().Err(err).Int("from", start).Int("to", end).Msg("batch embedding failed, embedding chunks one by one")
			vectors, err = embedEach(ctx, embedder, texts, start, opts.Policy)
			if err != nil {
				return nil, err
			}
		}

		for i, v := range vectors {
			if len(v) == 0 {
				return nil, &models.EmbeddingError{Index: start + i, Err: fmt.Errorf("empty vector")}
			}
			id, err := helper.GenerateUUID()
			if err != nil {
				return nil, err
			}
			out = append(out, models.ChunkEmbedding{
				ID:             id,
				Chunk:          chunks[start+i],
				Embedding:      v,
				EmbeddingModel: opts.Model,
			})
		}
		log.Debug().Int("embedded", end).Int("total", len(chunks)).Msg("embedding progress")
	}
	return out, nil
}

func embedEach(ctx context.Context, embedder embeddings.Embedder, texts []string, offset int, policy helper.RetryPolicy) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := helper.Do(ctx, policy, "embed chunk", func(ctx context.Context) ([]float32, error) {
			vs, err := embedder.EmbedDocuments(ctx, []string{text})
			if err != nil {
				return nil, err
			}
			if len(vs) != 1 {
				return nil, fmt.Errorf("provider returned %d vectors for 1 text", len(vs))
			}
			return vs[0], nil
		})
		if err != nil {
			return nil, &models.EmbeddingError{Index: offset + i, Err: err}
		}
		vectors[i] = v
	}
	return vectors, nil
}
