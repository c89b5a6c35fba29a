// Command search runs a retrieval against the configured collection and
// prints the matches with their distances. It does not call the chat model.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/models"
	"document-qa/internal/rag"
	"document-qa/internal/vectorstore"
)

const (
	defaultQuery = "teste"
	defaultK     = 3
	previewLen   = 200
)

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		helper.SetupLogger("info")
		log.Fatal().Err(err).Msg("Error loading config")
	}
	helper.SetupLogger(cfg.LogLevel)

	if err := cfg.ValidateSearch(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	query := strings.TrimSpace(strings.Join(os.Args[1:], " "))
	if query == "" {
		query = defaultQuery
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

	retriever := rag.NewRetriever(embedder, store, cfg.Embedding.Model, cfg.RetryPolicy())
	results, err := retriever.Retrieve(ctx, query, cfg.VectorStore.Collection, defaultK)
	if err != nil {
		store.Close()
		stop()
		log.Fatal().Err(err).Msg("Search failed")
	}

	fmt.Printf("\nQuery: '%s'\n", query)
	fmt.Printf("Found %d results:\n\n", len(results))
	for i, res := range results {
		fmt.Printf("--- Result %d (score: %.4f, page %s) ---\n", i+1, res.Score, res.Metadata[models.MetaPage])
		fmt.Println(helper.Preview(res.Content, previewLen))
		fmt.Println()
	}
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return config.DefaultConfigPath
}
