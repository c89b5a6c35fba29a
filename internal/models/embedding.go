package models

import "strconv"

// Page is one source unit of a parsed document (a PDF page, a slide, a sheet).
type Page struct {
	Source string
	Number int
	Text   string
}

// Chunk represents a bounded slice of a page with metadata
type Chunk struct {
	Content    string
	Source     string
	PageNumber int
	ChunkID    int
	// Overlap is the number of leading characters repeated from the previous chunk of the same page.
	Overlap int
}

// Metadata returns the chunk's storable metadata.
func (c Chunk) Metadata(embeddingModel string) map[string]string {
	md := map[string]string{
		MetaSource:     c.Source,
		MetaPage:       strconv.Itoa(c.PageNumber),
		MetaChunkIndex: strconv.Itoa(c.ChunkID),
	}
	if embeddingModel != "" {
		md[MetaEmbeddingModel] = embeddingModel
	}
	return md
}

type ChunkEmbedding struct {
	ID             string
	Chunk          Chunk
	Embedding      []float32
	EmbeddingModel string
}

// SearchResult is one retrieved chunk. Score is a distance: lower is better.
type SearchResult struct {
	Content  string
	Score    float64
	Metadata map[string]string
}

type PromptResponse struct {
	Query   string
	Context string
	Prompt  string
	Content string
	Sources []SearchResult
}
