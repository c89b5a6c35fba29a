package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// Generator turns a fully rendered prompt into the model's answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const defaultOllamaURL = "http://localhost:11434"

var thinkTag = regexp.MustCompile(models.ThinkTag)

// New builds the chat model selected by cfg.LLM.Provider.
func New(ctx context.Context, cfg *config.Config) (Generator, error) {
	log.Debug().Interface("llmConfig", cfg.LLM).Msg("creating chat model")

	switch cfg.LLM.Provider {
	case config.ProviderGoogle:
		g, err := NewGemini(ctx, cfg.Credentials.GoogleAPIKey, cfg.LLM.Model, cfg.LLM.Temperature)
		if err != nil {
			return nil, fmt.Errorf("%w: creating gemini client: %w", models.ErrConfiguration, err)
		}
		return g, nil
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Credentials.OpenAIAPIKey, "Bearer ")),
			openai.WithModel(cfg.LLM.Model),
		}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: creating openai client: %w", models.ErrConfiguration, err)
		}
		return NewLangchain(llm, cfg.LLM.Temperature), nil
	case config.ProviderOllama:
		url := cfg.LLM.BaseURL
		if url == "" {
			url = defaultOllamaURL
		}
		llm, err := ollama.New(ollama.WithServerURL(url), ollama.WithModel(cfg.LLM.Model))
		if err != nil {
			return nil, fmt.Errorf("%w: creating ollama client: %w", models.ErrConfiguration, err)
		}
		return NewLangchain(llm, cfg.LLM.Temperature), nil
	default:
		return nil, fmt.Errorf("%w: unsupported llm provider %q", models.ErrConfiguration, cfg.LLM.Provider)
	}
}

// Langchain adapts any langchaingo model.
type Langchain struct {
	llm         llms.Model
	temperature float64
}

func NewLangchain(llm llms.Model, temperature float64) *Langchain {
	return &Langchain{llm: llm, temperature: temperature}
}

func (l *Langchain) Generate(ctx context.Context, prompt string) (string, error) {
	msgContent := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	res, err := l.llm.GenerateContent(ctx, msgContent, llms.WithTemperature(l.temperature))
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return CleanAnswer(res.Choices[0].Content), nil
}

// CleanAnswer removes reasoning blocks emitted by thinking models.
func CleanAnswer(s string) string {
	return strings.TrimSpace(thinkTag.ReplaceAllString(s, ""))
}
