package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

type mockModel struct {
	OnGenerateContent func(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

func (m *mockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return m.OnGenerateContent(ctx, messages, options...)
}

func (m *mockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLangchainGenerate(t *testing.T) {
	var gotPrompt string
	var gotOpts llms.CallOptions
	m := &mockModel{OnGenerateContent: func(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
		for _, o := range options {
			o(&gotOpts)
		}
		gotPrompt = messages[0].Parts[0].(llms.TextContent).Text
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "<think>hmm</think>\nPoseidonia."}}}, nil
	}}

	answer, err := NewLangchain(m, 0).Generate(context.Background(), "What is the capital of Atlantis?")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "Poseidonia." {
		t.Errorf("answer = %q", answer)
	}
	if gotPrompt != "What is the capital of Atlantis?" {
		t.Errorf("prompt = %q", gotPrompt)
	}
	if gotOpts.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", gotOpts.Temperature)
	}
}

func TestLangchainGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		resp *llms.ContentResponse
		err  error
	}{
		{"provider error", nil, errors.New("boom")},
		{"no choices", &llms.ContentResponse{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockModel{OnGenerateContent: func(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
				return tt.resp, tt.err
			}}
			if _, err := NewLangchain(m, 0).Generate(context.Background(), "q"); err == nil {
				t.Fatal("Generate() error = nil")
			}
		})
	}
}

func TestCleanAnswer(t *testing.T) {
	tests := map[string]string{
		"plain":                             "plain",
		"  padded \n":                       "padded",
		"<think>a\nb</think>answer":         "answer",
		"<think>x</think>a<think>y</think>b": "ab",
	}
	for in, want := range tests {
		if got := CleanAnswer(in); got != want {
			t.Errorf("CleanAnswer(%q) = %q, want %q", in, got, want)
		}
	}
}
