package qdrantdb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
)

const (
	contentKey = "content"
	// runKey tags points with the write that stored them.
	runKey = "ingest_run"
)

// Store keeps collections in a Qdrant server. Collections are created on
// first write, sized to the first vector.
type Store struct {
	client *qdrant.Client
}

func NewStore(cfg *config.QdrantConfig) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) ensureCollection(ctx context.Context, name string, size int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	log.Info().Str("collection", name).Int("dimension", size).Msg("creating qdrant collection")
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(size),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (s *Store) AddDocuments(ctx context.Context, collection string, docs []models.ChunkEmbedding) error {
	run, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	return s.upsert(ctx, collection, run, docs)
}

// ReplaceCollection upserts docs under a fresh run tag and then deletes every
// point without that tag. A failed upsert leaves the old points in place.
func (s *Store) ReplaceCollection(ctx context.Context, collection string, docs []models.ChunkEmbedding) error {
	run, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	if err := s.upsert(ctx, collection, run, docs); err != nil {
		return err
	}
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil || !exists {
		return err
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(staleFilter(run)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		log.Error().Err(err).Str("collection", collection).Msg("new chunks stored but old ones could not be removed")
		return fmt.Errorf("qdrant delete failed: %w", err)
	}
	return nil
}

func staleFilter(run string) *qdrant.Filter {
	return &qdrant.Filter{
		MustNot: []*qdrant.Condition{qdrant.NewMatch(runKey, run)},
	}
}

func (s *Store) upsert(ctx context.Context, collection, run string, docs []models.ChunkEmbedding) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, collection, len(docs[0].Embedding)); err != nil {
		return fmt.Errorf("creating collection %s: %w", collection, err)
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		p := payload(d)
		p[runKey] = run
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(d.ID),
			Vectors: qdrant.NewVectors(d.Embedding...),
			Payload: qdrant.NewValueMap(p),
		}
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

// SimilaritySearch converts Qdrant's cosine similarity into a distance so
// lower scores mean closer matches, like the other stores.
func (s *Store) SimilaritySearch(ctx context.Context, collection string, vector []float32, k int) ([]models.SearchResult, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, len(hits))
	for i, hit := range hits {
		content, md := fromPayload(hit.Payload)
		results[i] = models.SearchResult{
			Content:  content,
			Score:    1 - float64(hit.Score),
			Metadata: md,
		}
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil || !exists {
		return 0, err
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	return int(n), err
}

func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil || !exists {
		return err
	}
	return s.client.DeleteCollection(ctx, collection)
}

func payload(d models.ChunkEmbedding) map[string]any {
	p := map[string]any{contentKey: d.Chunk.Content}
	for k, v := range d.Chunk.Metadata(d.EmbeddingModel) {
		p[k] = v
	}
	return p
}

func fromPayload(p map[string]*qdrant.Value) (string, map[string]string) {
	var content string
	md := make(map[string]string, len(p))
	for k, v := range p {
		switch k {
		case contentKey:
			content = v.GetStringValue()
			continue
		case runKey:
			continue
		}
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			md[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			md[k] = strconv.FormatInt(kind.IntegerValue, 10)
		case *qdrant.Value_DoubleValue:
			md[k] = strconv.FormatFloat(kind.DoubleValue, 'f', -1, 64)
		case *qdrant.Value_BoolValue:
			md[k] = strconv.FormatBool(kind.BoolValue)
		}
	}
	return content, md
}
