package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/bioguard/internal/config"
)

// Clients bundles what a single backend can do. Vision and Embedder are nil
// when the backend lacks the capability.
type Clients struct {
	Text     LLMClient
	Vision   VisionClient
	Embedder EmbedderClient
}

// NewClient builds the clients for a named backend.
func NewClient(ctx context.Context, provider, apiKey string, pc config.ProviderConfig) (Clients, error) {
	switch strings.ToLower(provider) {
	case "openai":
		c := NewOpenAIClient(apiKey, pc.Model, pc.EmbeddingModel, pc.BaseURL)
		return Clients{Text: c, Vision: c, Embedder: c}, nil

	case "gemini":
		c, err := NewGeminiClient(ctx, apiKey, pc.Model, pc.EmbeddingModel)
		if err != nil {
			return Clients{}, err
		}
		return Clients{Text: c, Vision: c, Embedder: c}, nil

	case "claude":
		c := NewClaudeClient(apiKey, pc.Model, pc.BaseURL)
		return Clients{Text: c}, nil

	case "ollama":
		// Ollama serves an OpenAI-compatible API under /v1 and ignores the key.
		c := NewOpenAIClient("ollama", pc.Model, pc.EmbeddingModel, ollamaURL(pc.BaseURL))
		return Clients{Text: c, Embedder: c}, nil

	default:
		return Clients{}, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}

// NewEmbedder returns the embedder selected by the storage settings.
func NewEmbedder(ctx context.Context, cfg *config.Config) (EmbedderClient, error) {
	switch cfg.Storage.Embedder {
	case "", "hash":
		return NewHashEmbedder(cfg.Storage.EmbeddingDims), nil
	case "openai":
		return NewOpenAIClient(cfg.Credentials.OpenAIAPIKey, "", cfg.Provider("openai").EmbeddingModel, cfg.Provider("openai").BaseURL), nil
	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.Credentials.GeminiAPIKey, "", cfg.Provider("gemini").EmbeddingModel)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "ollama":
		pc := cfg.Provider("ollama")
		base := cfg.Credentials.OllamaBaseURL
		if base == "" {
			base = pc.BaseURL
		}
		return NewOpenAIClient("ollama", "", pc.EmbeddingModel, ollamaURL(base)), nil
	default:
		return nil, fmt.Errorf("unsupported embedder: %s", cfg.Storage.Embedder)
	}
}

func ollamaURL(base string) string {
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return strings.TrimRight(base, "/") + "/v1"
}
