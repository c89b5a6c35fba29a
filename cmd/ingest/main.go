package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/ingest"
	"document-qa/internal/parser"
	"document-qa/internal/vectorstore"
)

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		helper.SetupLogger("info")
		log.Fatal().Err(err).Msg("Error loading config")
	}
	helper.SetupLogger(cfg.LogLevel)

	if err := cfg.ValidateIngest(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, err := embedding.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	store, err := vectorstore.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}
	defer store.Close()

	pipeline := ingest.NewPipeline(parser.New(), embedder, store, ingest.Options{
		BatchSize:      cfg.Embedding.BatchSize,
		EmbeddingModel: cfg.Embedding.Model,
		Policy:         cfg.RetryPolicy(),
		Reset:          cfg.RAG.ResetCollection,
		Progress: func(format string, args ...any) {
			fmt.Printf(format+"\n", args...)
		},
	})

	n, err := pipeline.Ingest(ctx, cfg.Document.Path, cfg.VectorStore.Collection, ingest.ChunkConfig{
		Size:    cfg.RAG.ChunkSize,
		Overlap: cfg.RAG.ChunkOverlap,
	})
	if err != nil {
		store.Close()
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	fmt.Printf("Ingestion complete: %d chunks stored in collection %q\n", n, cfg.VectorStore.Collection)
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return config.DefaultConfigPath
}
