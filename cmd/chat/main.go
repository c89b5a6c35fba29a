package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"document-qa/internal/chat"
	"document-qa/internal/config"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/llmservice"
	"document-qa/internal/prompt"
	"document-qa/internal/rag"
	"document-qa/internal/vectorstore"
)

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		helper.SetupLogger("info")
		log.Fatal().Err(err).Msg("Error loading config")
	}
	helper.SetupLogger(cfg.LogLevel)

	if err := cfg.ValidateQuery(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	lang, err := prompt.ParseLanguage(cfg.RAG.Language)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, err := embedding.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	llm, err := llmservice.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing chat model")
	}
	store, err := vectorstore.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}
	defer store.Close()

	policy := cfg.RetryPolicy()
	retriever := rag.NewRetriever(embedder, store, cfg.Embedding.Model, policy)
	r := rag.NewRAG(retriever, llm, rag.Options{
		Collection: cfg.VectorStore.Collection,
		TopK:       cfg.RAG.TopK,
		Language:   lang,
		Policy:     policy,
	})

	if err := chat.NewSession(r, os.Stdin, os.Stdout).Run(ctx); err != nil {
		log.Error().Err(err).Msg("Error reading input")
	}
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return config.DefaultConfigPath
}
