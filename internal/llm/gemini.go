package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// GeminiProvider calls Google's Gemini API through the genai SDK.
type GeminiProvider struct {
	Model  string
	client *genai.Client
}

// NewGeminiProvider creates a Gemini provider. A missing API key yields an
// unconfigured provider rather than an error.
func NewGeminiProvider(ctx context.Context, model, apiKeyEnv string) (*GeminiProvider, error) {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	p := &GeminiProvider{Model: model}

	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return p, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	p.client = client
	return p, nil
}

// IsConfigured reports whether a client was created.
func (g *GeminiProvider) IsConfigured() bool {
	return g.client != nil
}

// Generate sends a prompt to Gemini and returns the response text.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("Gemini API key not configured")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		MaxOutputTokens:  int32(maxTokens),
		Temperature:      genai.Ptr[float32](0.2),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty Gemini response")
	}
	return text, nil
}
