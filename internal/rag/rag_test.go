package rag

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"testing"
	"time"
	"unicode"

	"document-qa/internal/chromemdb"
	"document-qa/internal/helper"
	"document-qa/internal/ingest"
	"document-qa/internal/models"
	"document-qa/internal/prompt"
)

const dims = 128

// hashEmbedder is a deterministic bag-of-words embedder. Dimension 0 is a
// constant so no vector is ever zero.
type hashEmbedder struct {
	OnEmbedQuery func(ctx context.Context, text string) ([]float32, error)
}

func (h *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, dims)
	v[0] = 1
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		v[1+int(f.Sum32()%(dims-1))]++
	}
	return v
}

func (h *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if h.OnEmbedQuery != nil {
		return h.OnEmbedQuery(ctx, text)
	}
	return h.vector(text), nil
}

type mockParser struct {
	pages []models.Page
}

func (m *mockParser) Parse(path string) ([]models.Page, error) {
	out := make([]models.Page, len(m.pages))
	for i, p := range m.pages {
		p.Source = path
		out[i] = p
	}
	return out, nil
}

type mockGenerator struct {
	OnGenerate func(ctx context.Context, prompt string) (string, error)
	prompts    []string
}

func (m *mockGenerator) Generate(ctx context.Context, p string) (string, error) {
	m.prompts = append(m.prompts, p)
	return m.OnGenerate(ctx, p)
}

type mockSearcher struct {
	OnSimilaritySearch func(ctx context.Context, collection string, vector []float32, k int) ([]models.SearchResult, error)
}

func (m *mockSearcher) SimilaritySearch(ctx context.Context, collection string, vector []float32, k int) ([]models.SearchResult, error) {
	return m.OnSimilaritySearch(ctx, collection, vector, k)
}

// groundedModel answers only from the CONTEXT section of an English prompt.
func groundedModel(facts map[string]string) *mockGenerator {
	return &mockGenerator{OnGenerate: func(_ context.Context, p string) (string, error) {
		start := strings.Index(p, "CONTEXT:\n")
		end := strings.Index(p, "\n\nRULES:")
		if start < 0 || end < start {
			return "", errors.New("prompt has no CONTEXT section")
		}
		ctxText := p[start+len("CONTEXT:\n") : end]
		for keyword, answer := range facts {
			if strings.Contains(ctxText, keyword) {
				return answer, nil
			}
		}
		return prompt.Refusal(prompt.English), nil
	}}
}

var atlantisPages = []models.Page{
	{Number: 1, Text: "Bananas grow in tropical climates. Farmers harvest bananas twice a year."},
	{Number: 2, Text: "Chapter two describes a lost island. The capital of Atlantis is Poseidonia. Its harbour was famous."},
	{Number: 3, Text: "Stock markets fluctuate daily. Investors watch interest rates closely."},
}

func ingestPages(t *testing.T, store *chromemdb.Store, embedder *hashEmbedder, collection string, pages []models.Page) int {
	t.Helper()
	p := ingest.NewPipeline(&mockParser{pages: pages}, embedder, store, ingest.Options{BatchSize: 2, EmbeddingModel: "hash-embed"})
	n, err := p.Ingest(context.Background(), "atlantis.pdf", collection, ingest.ChunkConfig{Size: models.DefaultChunkSize, Overlap: models.DefaultChunkOverlap})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	return n
}

func TestAtlantisScenario(t *testing.T) {
	ctx := context.Background()
	store, _ := chromemdb.NewStore("")
	embedder := &hashEmbedder{}
	if n := ingestPages(t, store, embedder, "atlantis", atlantisPages); n != 3 {
		t.Fatalf("ingested %d chunks, want 3", n)
	}

	retriever := NewRetriever(embedder, store, "hash-embed", helper.RetryPolicy{})
	results, err := retriever.Retrieve(ctx, "What is the capital of Atlantis?", "atlantis", models.DefaultTopK)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) == 0 || len(results) > models.DefaultTopK {
		t.Fatalf("got %d results", len(results))
	}
	const sentence = "The capital of Atlantis is Poseidonia."
	if !strings.Contains(results[0].Content, sentence) {
		t.Errorf("best match %q does not hold the answer", results[0].Content)
	}
	if results[0].Metadata[models.MetaPage] != "2" {
		t.Errorf("best match page = %q, want 2", results[0].Metadata[models.MetaPage])
	}
	if ctxText := Assemble(results); !strings.Contains(ctxText, sentence) {
		t.Errorf("assembled context lacks the sentence:\n%s", ctxText)
	}

	model := groundedModel(map[string]string{"Poseidonia": "The capital of Atlantis is Poseidonia."})
	r := NewRAG(retriever, model, Options{Collection: "atlantis", Language: prompt.English})
	resp, err := r.Answer(ctx, "What is the capital of Atlantis?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if resp.Content != "The capital of Atlantis is Poseidonia." {
		t.Errorf("answer = %q", resp.Content)
	}
	if !strings.Contains(resp.Prompt, "USER QUESTION:\nWhat is the capital of Atlantis?\n") {
		t.Errorf("prompt does not carry the question verbatim")
	}
}

func TestQuestionOutsideDocumentIsRefused(t *testing.T) {
	ctx := context.Background()
	store, _ := chromemdb.NewStore("")
	embedder := &hashEmbedder{}
	ingestPages(t, store, embedder, "atlantis", atlantisPages)

	model := groundedModel(map[string]string{"France": "Paris"})
	r := NewRAG(NewRetriever(embedder, store, "hash-embed", helper.RetryPolicy{}), model, Options{Collection: "atlantis", Language: prompt.English})
	resp, err := r.Answer(ctx, "What is the capital of France?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if resp.Content != prompt.RefusalEN {
		t.Errorf("answer = %q, want the refusal sentence", resp.Content)
	}
	if !strings.Contains(model.prompts[0], `"`+prompt.RefusalEN+`"`) {
		t.Error("model-facing prompt does not instruct refusal")
	}
}

func TestRetrieveEmptyOrMissingCollection(t *testing.T) {
	ctx := context.Background()
	store, _ := chromemdb.NewStore("")
	retriever := NewRetriever(&hashEmbedder{}, store, "", helper.RetryPolicy{})

	results, err := retriever.Retrieve(ctx, "anything", "missing", 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results from a missing collection", len(results))
	}

	model := groundedModel(nil)
	resp, err := NewRAG(retriever, model, Options{Collection: "missing", Language: prompt.English}).Answer(ctx, "anything")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if resp.Context != "" || resp.Content != prompt.RefusalEN {
		t.Errorf("empty collection: context %q, answer %q", resp.Context, resp.Content)
	}
}

func TestRetrieveBoundsAndOrder(t *testing.T) {
	ctx := context.Background()
	store, _ := chromemdb.NewStore("")
	embedder := &hashEmbedder{}
	var pages []models.Page
	for i := 1; i <= 30; i++ {
		pages = append(pages, models.Page{Number: i, Text: fmt.Sprintf("Page %d mentions topic%d and topic%d alongside the capital city.", i, i, i%7)})
	}
	ingestPages(t, store, embedder, "many", pages)

	retriever := NewRetriever(embedder, store, "hash-embed", helper.RetryPolicy{})
	for _, k := range []int{1, 5, 10, 50} {
		results, err := retriever.Retrieve(ctx, "topic3 capital", "many", k)
		if err != nil {
			t.Fatalf("Retrieve(k=%d) error = %v", k, err)
		}
		if len(results) > k {
			t.Errorf("k=%d returned %d results", k, len(results))
		}
		if k <= 30 && len(results) != k {
			t.Errorf("k=%d returned %d results, collection has 30", k, len(results))
		}
		for i := 1; i < len(results); i++ {
			if results[i].Score < results[i-1].Score {
				t.Errorf("k=%d: result %d is closer than result %d", k, i, i-1)
			}
		}
	}
}

func TestRetrieveRejectsInvalidK(t *testing.T) {
	retriever := NewRetriever(&hashEmbedder{}, &mockSearcher{}, "", helper.RetryPolicy{})
	_, err := retriever.Retrieve(context.Background(), "q", "c", 0)
	if !errors.Is(err, models.ErrConfiguration) {
		t.Fatalf("Retrieve(k=0) error = %v, want ErrConfiguration", err)
	}
}

func TestRetrieveTruncatesAndSorts(t *testing.T) {
	searcher := &mockSearcher{OnSimilaritySearch: func(context.Context, string, []float32, int) ([]models.SearchResult, error) {
		return []models.SearchResult{{Content: "c", Score: 0.3}, {Content: "a", Score: 0.1}, {Content: "b", Score: 0.2}}, nil
	}}
	results, err := NewRetriever(&hashEmbedder{}, searcher, "", helper.RetryPolicy{}).Retrieve(context.Background(), "q", "c", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Content != "a" || results[1].Content != "b" {
		t.Errorf("results = %+v", results)
	}
}

func TestAnswerErrorKinds(t *testing.T) {
	ok := &mockSearcher{OnSimilaritySearch: func(context.Context, string, []float32, int) ([]models.SearchResult, error) {
		return []models.SearchResult{{Content: "ctx"}}, nil
	}}
	okModel := &mockGenerator{OnGenerate: func(context.Context, string) (string, error) { return "fine", nil }}

	tests := []struct {
		name     string
		embedder *hashEmbedder
		searcher *mockSearcher
		model    *mockGenerator
		want     error
	}{
		{
			name: "embedding failure",
			embedder: &hashEmbedder{OnEmbedQuery: func(context.Context, string) ([]float32, error) {
				return nil, errors.New("network down")
			}},
			searcher: ok, model: okModel, want: models.ErrEmbedding,
		},
		{
			name:     "search failure",
			embedder: &hashEmbedder{},
			searcher: &mockSearcher{OnSimilaritySearch: func(context.Context, string, []float32, int) ([]models.SearchResult, error) {
				return nil, errors.New("connection refused")
			}},
			model: okModel, want: models.ErrSearch,
		},
		{
			name:     "model failure",
			embedder: &hashEmbedder{},
			searcher: ok,
			model: &mockGenerator{OnGenerate: func(context.Context, string) (string, error) {
				return "", errors.New("rate limited")
			}},
			want: models.ErrModelInvocation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRAG(NewRetriever(tt.embedder, tt.searcher, "", helper.RetryPolicy{}), tt.model, Options{Collection: "c"})
			if _, err := r.Answer(context.Background(), "q"); !errors.Is(err, tt.want) {
				t.Fatalf("Answer() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAnswerTimesOut(t *testing.T) {
	searcher := &mockSearcher{OnSimilaritySearch: func(context.Context, string, []float32, int) ([]models.SearchResult, error) {
		return nil, nil
	}}
	slow := &mockGenerator{OnGenerate: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	policy := helper.RetryPolicy{Timeout: 20 * time.Millisecond}
	r := NewRAG(NewRetriever(&hashEmbedder{}, searcher, "", policy), slow, Options{Collection: "c", Policy: policy})

	_, err := r.Answer(context.Background(), "q")
	if !errors.Is(err, models.ErrModelInvocation) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Answer() error = %v, want a model invocation timeout", err)
	}
}

func TestAnswerRetriesModel(t *testing.T) {
	searcher := &mockSearcher{OnSimilaritySearch: func(context.Context, string, []float32, int) ([]models.SearchResult, error) {
		return nil, nil
	}}
	calls := 0
	flaky := &mockGenerator{OnGenerate: func(context.Context, string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("unavailable")
		}
		return "ok", nil
	}}
	policy := helper.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
	r := NewRAG(NewRetriever(&hashEmbedder{}, searcher, "", policy), flaky, Options{Collection: "c", Policy: policy})
	resp, err := r.Answer(context.Background(), "q")
	if err != nil || resp.Content != "ok" || calls != 3 {
		t.Fatalf("Answer() = %v, %v after %d calls", resp, err, calls)
	}
}

func TestAssemble(t *testing.T) {
	tests := []struct {
		name    string
		results []models.SearchResult
		want    string
	}{
		{"empty", nil, ""},
		{"single", []models.SearchResult{{Content: "one", Score: 0.1}}, "one"},
		{"ordered", []models.SearchResult{
			{Content: "first", Score: 0.1, Metadata: map[string]string{"page": "1"}},
			{Content: "second", Score: 0.2},
		}, "first\n\n---\n\nsecond"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Assemble(tt.results); got != tt.want {
				t.Errorf("Assemble() = %q, want %q", got, tt.want)
			}
		})
	}
}
