package vectorstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"document-qa/internal/chromemdb"
	"document-qa/internal/config"
	"document-qa/internal/db"
	"document-qa/internal/models"
	"document-qa/internal/qdrantdb"
)

// Writer stores embedded chunks in a collection.
type Writer interface {
	AddDocuments(ctx context.Context, collection string, docs []models.ChunkEmbedding) error
	// ReplaceCollection swaps the collection's contents for docs. When it
	// fails the previous contents are still there.
	ReplaceCollection(ctx context.Context, collection string, docs []models.ChunkEmbedding) error
}

// Searcher finds the k nearest chunks, closest first. Missing collections yield no results.
type Searcher interface {
	SimilaritySearch(ctx context.Context, collection string, vector []float32, k int) ([]models.SearchResult, error)
}

type Store interface {
	Writer
	Searcher
	Count(ctx context.Context, collection string) (int, error)
	DeleteCollection(ctx context.Context, collection string) error
	Close() error
}

var (
	_ Store = (*db.Store)(nil)
	_ Store = (*chromemdb.Store)(nil)
	_ Store = (*qdrantdb.Store)(nil)
)

// Open connects to the backend named by cfg.VectorStore.Type.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	log.Debug().Str("type", cfg.VectorStore.Type).Str("collection", cfg.VectorStore.Collection).Msg("opening vector store")

	var (
		s   Store
		err error
	)
	switch cfg.VectorStore.Type {
	case config.StorePGVector:
		s, err = openPG(ctx, cfg)
	case config.StoreChromem:
		s, err = openChromem(cfg)
	case config.StoreQdrant:
		s, err = openQdrant(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported vector store %q", models.ErrConfiguration, cfg.VectorStore.Type)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openPG(ctx context.Context, cfg *config.Config) (Store, error) {
	s, err := db.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openChromem(cfg *config.Config) (Store, error) {
	s, err := chromemdb.NewStore(cfg.VectorStore.ChromemPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openQdrant(cfg *config.Config) (Store, error) {
	s, err := qdrantdb.NewStore(&cfg.VectorStore.Qdrant)
	if err != nil {
		return nil, err
	}
	return s, nil
}
