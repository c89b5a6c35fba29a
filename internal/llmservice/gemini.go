package llmservice

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGemini(ctx context.Context, apiKey, model string, temperature float64) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client, model: model, temperature: float32(temperature)}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	temperature := g.temperature
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		return "", err
	}
	text := result.Text()
	if text == "" {
		return "", errors.New("gemini returned an empty answer")
	}
	return CleanAnswer(text), nil
}
