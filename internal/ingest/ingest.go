package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-qa/internal/chunker"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/parser"
	"document-qa/internal/vectorstore"
)

type ChunkConfig struct {
	Size    int
	Overlap int
}

type Options struct {
	BatchSize      int
	EmbeddingModel string
	Policy         helper.RetryPolicy
	// Reset replaces the collection's contents. Without it ingestion only appends.
	Reset bool
	// Progress, when set, receives human readable status lines.
	Progress func(format string, args ...any)
}

// Store is what ingestion needs from a vector store.
type Store = vectorstore.Writer

type Pipeline struct {
	parser   parser.Parser
	embedder embeddings.Embedder
	store    Store
	opts     Options
}

func NewPipeline(p parser.Parser, embedder embeddings.Embedder, store Store, opts Options) *Pipeline {
	if opts.Progress == nil {
		opts.Progress = func(string, ...any) {}
	}
	return &Pipeline{parser: p, embedder: embedder, store: store, opts: opts}
}

// Ingest parses, chunks, embeds and stores sourcePath, returning the number
// of chunks written. Any failure aborts the whole run.
func (p *Pipeline) Ingest(ctx context.Context, sourcePath, collection string, cc ChunkConfig) (int, error) {
	if err := chunker.Validate(cc.Size, cc.Overlap); err != nil {
		return 0, err
	}

	p.opts.Progress("Loading %s", sourcePath)
	pages, err := p.parser.Parse(sourcePath)
	if err != nil {
		return 0, err
	}
	p.opts.Progress("Loaded %d pages", len(pages))

	chunks, err := chunker.Split(pages, cc.Size, cc.Overlap)
	if err != nil {
		return 0, err
	}
	p.opts.Progress("Split into %d chunks (size %d, overlap %d)", len(chunks), cc.Size, cc.Overlap)
	if len(chunks) == 0 {
		log.Warn().Str("file", sourcePath).Msg("document has no text, nothing stored")
		return 0, nil
	}

	p.opts.Progress("Generating embeddings")
	docs, err := embedding.GenerateEmbeddings(ctx, p.embedder, chunks, embedding.BatchOptions{
		BatchSize: p.opts.BatchSize,
		Model:     p.opts.EmbeddingModel,
		Policy:    p.opts.Policy,
	})
	if err != nil {
		return 0, err
	}

	storeCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.opts.Policy.Timeout > 0 {
		storeCtx, cancel = context.WithTimeout(ctx, p.opts.Policy.Timeout)
	}
	defer cancel()

	if p.opts.Reset {
		p.opts.Progress("Replacing contents of collection %s", collection)
		if err := p.store.ReplaceCollection(storeCtx, collection, docs); err != nil {
			return 0, fmt.Errorf("replacing chunks in %s: %w", collection, err)
		}
	} else {
		p.opts.Progress("Storing in collection %s", collection)
		if err := p.store.AddDocuments(storeCtx, collection, docs); err != nil {
			return 0, fmt.Errorf("storing chunks in %s: %w", collection, err)
		}
	}

	log.Info().Str("file", sourcePath).Str("collection", collection).Int("chunks", len(docs)).Msg("ingestion finished")
	return len(docs), nil
}
