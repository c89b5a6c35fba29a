package models

const (
	// ContextSeparator joins retrieved chunks when building the model context.
	ContextSeparator = "\n\n---\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 150
	DefaultTopK         = 10
)

// metadata keys stored with every chunk
const (
	MetaSource         = "source"
	MetaPage           = "page"
	MetaChunkIndex     = "chunk_index"
	MetaEmbeddingModel = "embedding_model"
)
