package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-qa/internal/helper"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/prompt"
	"document-qa/internal/vectorstore"
)

// Retriever embeds a query and returns the nearest chunks of a collection.
// The embedder must be the model the collection was ingested with; stored
// chunks record that model and a mismatch is logged, not corrected.
type Retriever struct {
	embedder       embeddings.Embedder
	store          vectorstore.Searcher
	embeddingModel string
	policy         helper.RetryPolicy
}

func NewRetriever(embedder embeddings.Embedder, store vectorstore.Searcher, embeddingModel string, policy helper.RetryPolicy) *Retriever {
	return &Retriever{embedder: embedder, store: store, embeddingModel: embeddingModel, policy: policy}
}

// Retrieve returns at most k results, best match first.
func (r *Retriever) Retrieve(ctx context.Context, query, collection string, k int) ([]models.SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", models.ErrConfiguration, k)
	}

	vector, err := helper.Do(ctx, r.policy, "embed query", func(ctx context.Context) ([]float32, error) {
		return r.embedder.EmbedQuery(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", models.ErrEmbedding, err)
	}

	searchPolicy := helper.RetryPolicy{Timeout: r.policy.Timeout}
	results, err := helper.Do(ctx, searchPolicy, "similarity search", func(ctx context.Context) ([]models.SearchResult, error) {
		return r.store.SimilaritySearch(ctx, collection, vector, k)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: collection %s: %w", models.ErrSearch, collection, err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score < results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	r.checkEmbeddingModel(collection, results)

	log.Debug().Str("collection", collection).Int("k", k).Int("results", len(results)).Msg("retrieved chunks")
	return results, nil
}

func (r *Retriever) checkEmbeddingModel(collection string, results []models.SearchResult) {
	if r.embeddingModel == "" {
		return
	}
	for _, res := range results {
		stored := res.Metadata[models.MetaEmbeddingModel]
		if stored != "" && stored != r.embeddingModel {
			log.Warn().
				Str("collection", collection).
				Str("stored_model", stored).
				Str("query_model", r.embeddingModel).
				Msg("collection was embedded with a different model, retrieval quality will suffer")
			return
		}
	}
}

// Assemble joins result contents in ranking order. Scores and metadata are dropped.
func Assemble(results []models.SearchResult) string {
	parts := make([]string, len(results))
	for i, res := range results {
		parts[i] = res.Content
	}
	return strings.Join(parts, models.ContextSeparator)
}

type Options struct {
	Collection string
	TopK       int
	Language   prompt.Language
	Policy     helper.RetryPolicy
}

// RAG answers questions grounded in one collection.
type RAG struct {
	retriever *Retriever
	llm       llmservice.Generator
	opts      Options
}

func NewRAG(retriever *Retriever, llm llmservice.Generator, opts Options) *RAG {
	if opts.TopK == 0 {
		opts.TopK = models.DefaultTopK
	}
	return &RAG{retriever: retriever, llm: llm, opts: opts}
}

// Answer retrieves context for question, renders the grounded prompt and asks the model.
func (r *RAG) Answer(ctx context.Context, question string) (*models.PromptResponse, error) {
	results, err := r.retriever.Retrieve(ctx, question, r.opts.Collection, r.opts.TopK)
	if err != nil {
		return nil, err
	}

	contextText := Assemble(results)
	p := prompt.Build(r.opts.Language, contextText, question)

	answer, err := helper.Do(ctx, r.opts.Policy, "generate answer", func(ctx context.Context) (string, error) {
		return r.llm.Generate(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrModelInvocation, err)
	}

	return &models.PromptResponse{
		Query:   question,
		Context: contextText,
		Prompt:  p,
		Content: answer,
		Sources: results,
	}, nil
}
