package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
)

// Collection and Embedding follow the langchain PGVector schema, so
// collections written by langchain tooling can be queried here and the
// other way round.
type Collection struct {
	bun.BaseModel `bun:"table:langchain_pg_collection,alias:c"`
	UUID          string         `bun:"uuid,pk,type:uuid"`
	Name          string         `bun:"name,notnull,unique"`
	CMetadata     map[string]any `bun:"cmetadata,type:jsonb"`
}

type Embedding struct {
	bun.BaseModel `bun:"table:langchain_pg_embedding,alias:e"`
	ID            string          `bun:"id,pk"`
	CollectionID  string          `bun:"collection_id,type:uuid"`
	Embedding     pgvector.Vector `bun:"embedding,type:vector"`
	Document      string          `bun:"document"`
	CMetadata     map[string]any  `bun:"cmetadata,type:jsonb"`
	Distance      float64         `bun:"distance,scanonly"`
}

// Store is a pgvector backed vector store.
type Store struct {
	db *bun.DB
}

// NewDB wraps sqldb with the postgres dialect and, when debug is set, logs every query.
func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPQ:
		return sql.Open("postgres", cfg.URL)
	case config.DriverPGDriver, "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.URL))), nil
	default:
		return nil, fmt.Errorf("%w: unsupported database driver %q", models.ErrConfiguration, cfg.Driver)
	}
}

// Open connects, checks the connection and makes sure the schema exists.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("creating vector extension: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Collection)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("creating collection table: %w", err)
	}
	_, err := db.NewCreateTable().
		Model((*Embedding)(nil)).
		IfNotExists().
		ForeignKey(`("collection_id") REFERENCES "langchain_pg_collection" ("uuid") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("creating embedding table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) findCollection(ctx context.Context, db bun.IDB, name string) (*Collection, error) {
	coll := new(Collection)
	err := db.NewSelect().Model(coll).Where("name = ?", name).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return coll, nil
}

// AddDocuments inserts docs into the named collection, creating it when needed.
// Every call adds new rows.
func (s *Store) AddDocuments(ctx context.Context, collection string, docs []models.ChunkEmbedding) error {
	if len(docs) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		coll, err := s.getOrCreateCollection(ctx, tx, collection)
		if err != nil {
			return err
		}
		return insertEmbeddings(ctx, tx, coll, docs)
	})
}

// ReplaceCollection deletes the collection's rows and inserts docs in one
// transaction, so a failed insert leaves the old rows untouched.
func (s *Store) ReplaceCollection(ctx context.Context, collection string, docs []models.ChunkEmbedding) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		coll, err := s.getOrCreateCollection(ctx, tx, collection)
		if err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*Embedding)(nil)).Where("collection_id = ?", coll.UUID).Exec(ctx)
		if err != nil {
			return fmt.Errorf("clearing collection %s: %w", collection, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			log.Info().Str("collection", collection).Int64("rows", n).Msg("replacing collection rows")
		}
		if len(docs) == 0 {
			return nil
		}
		return insertEmbeddings(ctx, tx, coll, docs)
	})
}

func (s *Store) getOrCreateCollection(ctx context.Context, tx bun.Tx, name string) (*Collection, error) {
	coll, err := s.findCollection(ctx, tx, name)
	if err != nil || coll != nil {
		return coll, err
	}
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	coll = &Collection{UUID: id, Name: name, CMetadata: map[string]any{}}
	if _, err := tx.NewInsert().Model(coll).Exec(ctx); err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}
	log.Info().Str("collection", name).Msg("created collection")
	return coll, nil
}

func insertEmbeddings(ctx context.Context, tx bun.Tx, coll *Collection, docs []models.ChunkEmbedding) error {
	rows := make([]Embedding, len(docs))
	for i, d := range docs {
		rows[i] = Embedding{
			ID:           d.ID,
			CollectionID: coll.UUID,
			Embedding:    pgvector.NewVector(d.Embedding),
			Document:     d.Chunk.Content,
			CMetadata:    toJSONMetadata(d.Chunk.Metadata(d.EmbeddingModel)),
		}
	}
	if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("inserting %d embeddings: %w", len(rows), err)
	}
	return nil
}

// SimilaritySearch returns the k rows closest to vector by cosine distance.
// A missing collection yields no results.
func (s *Store) SimilaritySearch(ctx context.Context, collection string, vector []float32, k int) ([]models.SearchResult, error) {
	coll, err := s.findCollection(ctx, s.db, collection)
	if err != nil {
		return nil, err
	}
	if coll == nil {
		return nil, nil
	}

	var rows []Embedding
	err = s.db.NewSelect().
		Model(&rows).
		Column("id", "document", "cmetadata").
		ColumnExpr("embedding <=> ? AS distance", pgvector.NewVector(vector)).
		Where("collection_id = ?", coll.UUID).
		OrderExpr("distance ASC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, len(rows))
	for i, r := range rows {
		results[i] = models.SearchResult{
			Content:  r.Document,
			Score:    r.Distance,
			Metadata: fromJSONMetadata(r.CMetadata),
		}
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	coll, err := s.findCollection(ctx, s.db, collection)
	if err != nil || coll == nil {
		return 0, err
	}
	return s.db.NewSelect().Model((*Embedding)(nil)).Where("collection_id = ?", coll.UUID).Count(ctx)
}

// DeleteCollection drops the collection and its embeddings.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		coll, err := s.findCollection(ctx, tx, collection)
		if err != nil || coll == nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*Embedding)(nil)).Where("collection_id = ?", coll.UUID).Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewDelete().Model((*Collection)(nil)).Where("uuid = ?", coll.UUID).Exec(ctx)
		return err
	})
}

// toJSONMetadata stores numeric metadata as JSON numbers, as langchain does.
// Pages follow the langchain PDF loader and are stored 0-based; chunks
// carry 1-based page numbers, so the two are shifted here and in
// fromJSONMetadata.
func toJSONMetadata(md map[string]string) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		switch k {
		case models.MetaPage, models.MetaChunkIndex:
			if n, err := strconv.Atoi(v); err == nil {
				if k == models.MetaPage {
					n--
				}
				out[k] = n
				continue
			}
		}
		out[k] = v
	}
	return out
}

func fromJSONMetadata(md map[string]any) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			if k == models.MetaPage {
				t++
			}
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case nil:
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}
