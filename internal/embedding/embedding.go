package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

const defaultOllamaURL = "http://localhost:11434"

// New builds the embedder selected by cfg.Embedding.Provider.
func New(ctx context.Context, cfg *config.Config) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]any{
		"provider":        cfg.Embedding.Provider,
		"embedding_model": cfg.Embedding.Model,
		"base_url":        cfg.Embedding.BaseURL,
	}).Msg("creating embedder")

	var (
		e   embeddings.Embedder
		err error
	)
	switch cfg.Embedding.Provider {
	case config.ProviderGoogle:
		e, err = NewGeminiEmbedder(ctx, cfg.Credentials.GoogleAPIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	case config.ProviderOpenAI:
		e, err = NewOpenAIEmbedder(cfg.Credentials.OpenAIAPIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.BatchSize)
	case config.ProviderOllama:
		e, err = NewOllamaEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.BatchSize)
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", models.ErrConfiguration, cfg.Embedding.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s embedder: %w", models.ErrConfiguration, cfg.Embedding.Provider, err)
	}
	return e, nil
}

// NewOpenAIEmbedder works with OpenAI and any OpenAI compatible endpoint.
func NewOpenAIEmbedder(apiKey, baseURL, embeddingModel string, batchSize int) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		openai.WithEmbeddingModel(embeddingModel),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize), embeddings.WithStripNewLines(false))
}

func NewOllamaEmbedder(serverURL, embeddingModel string, batchSize int) (*embeddings.EmbedderImpl, error) {
	if serverURL == "" {
		serverURL = defaultOllamaURL
	}
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(embeddingModel),
	)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize), embeddings.WithStripNewLines(false))
}
