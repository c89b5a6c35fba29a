package chromemdb

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

const (
	compress      = false
	stagingSuffix = ".staging"
)

// Store keeps collections in chromem-go, on disk when a path is given and in memory otherwise.
type Store struct {
	db     *chromem.DB
	dbPath string
}

func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return &Store{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(dbPath, compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %v", err)
	}
	log.Debug().Str("path", dbPath).Msg("opened chromem database")
	return &Store{db: db, dbPath: dbPath}, nil
}

// AddDocuments stores docs with their precomputed embeddings.
func (s *Store) AddDocuments(ctx context.Context, collection string, docs []models.ChunkEmbedding) error {
	if len(docs) == 0 {
		return nil
	}
	// embeddings always come precomputed, the collection never embeds on its own
	c, err := s.db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %v", err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Chunk.Content,
			Metadata:  d.Chunk.Metadata(d.EmbeddingModel),
			Embedding: d.Embedding,
		}
	}
	if err := c.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}
	return nil
}

// ReplaceCollection writes docs into a staging collection first. Only when
// that succeeds is the live collection dropped and rebuilt from the same
// documents, which no longer involves the caller's deadline.
func (s *Store) ReplaceCollection(ctx context.Context, collection string, docs []models.ChunkEmbedding) error {
	staging := collection + stagingSuffix
	if err := s.db.DeleteCollection(staging); err != nil {
		return fmt.Errorf("failed to drop staging collection: %v", err)
	}
	if err := s.AddDocuments(ctx, staging, docs); err != nil {
		if dropErr := s.db.DeleteCollection(staging); dropErr != nil {
			log.Warn().Err(dropErr).Str("collection", staging).Msg("could not drop staging collection")
		}
		return err
	}

	swapCtx := context.WithoutCancel(ctx)
	if err := s.DeleteCollection(swapCtx, collection); err != nil {
		return err
	}
	if err := s.AddDocuments(swapCtx, collection, docs); err != nil {
		log.Error().Err(err).Str("collection", collection).Str("staging", staging).
			Msg("collection was cleared but rebuilding it failed, the new chunks are kept in the staging collection")
		return err
	}
	return s.db.DeleteCollection(staging)
}

// SimilaritySearch returns up to k nearest documents. Scores are cosine distances.
func (s *Store) SimilaritySearch(ctx context.Context, collection string, vector []float32, k int) ([]models.SearchResult, error) {
	c := s.db.GetCollection(collection, nil)
	if c == nil {
		return nil, nil
	}
	// chromem refuses nResults above the collection size
	n := min(k, c.Count())
	if n <= 0 {
		return nil, nil
	}

	res, err := c.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}
	results := make([]models.SearchResult, len(res))
	for i, r := range res {
		results[i] = models.SearchResult{
			Content:  r.Content,
			Score:    1 - float64(r.Similarity),
			Metadata: r.Metadata,
		}
	}
	return results, nil
}

func (s *Store) Count(_ context.Context, collection string) (int, error) {
	c := s.db.GetCollection(collection, nil)
	if c == nil {
		return 0, nil
	}
	return c.Count(), nil
}

func (s *Store) DeleteCollection(_ context.Context, collection string) error {
	if err := s.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("failed to drop collection: %v", err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
