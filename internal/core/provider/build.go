package provider

import (
	"context"
	"fmt"

	"github.com/agenthands/bioguard/internal/config"
	"github.com/agenthands/bioguard/internal/llm"
)

// FromConfig constructs a Provider for every descriptor in chain.
func FromConfig(ctx context.Context, cfg *config.Config, chain []Descriptor) (map[string]Provider, error) {
	creds := cfg.Credentials
	providers := make(map[string]Provider, len(chain))
	for _, d := range chain {
		pc := cfg.Provider(d.Name)
		var (
			p   Provider
			err error
		)
		switch d.Name {
		case OfflineName:
			p = NewOffline()
		case "gemini":
			p, err = llmProvider(ctx, d.Name, creds.GeminiAPIKey, pc, cfg.Prompts)
		case "openai":
			p, err = llmProvider(ctx, d.Name, creds.OpenAIAPIKey, pc, cfg.Prompts)
		case "claude":
			p, err = llmProvider(ctx, d.Name, creds.AnthropicAPIKey, pc, cfg.Prompts)
		case "ollama":
			pc.BaseURL = creds.OllamaBaseURL
			p, err = llmProvider(ctx, d.Name, "", pc, cfg.Prompts)
		case "edamam":
			p = NewEdamam(pc.BaseURL, creds.EdamamAppID, creds.EdamamAppKey)
		case "openfoodfacts":
			p = NewOpenFoodFacts(pc.BaseURL, creds.OpenFoodFactsUserAgent)
		case "fooddata":
			p = NewFoodData(pc.BaseURL, creds.USDAAPIKey)
		case "nutritionix":
			p = NewNutritionix(pc.BaseURL, creds.NutritionixAppID, creds.NutritionixAPIKey)
		default:
			err = fmt.Errorf("no constructor for provider %q", d.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to initialize provider %s: %w", d.Name, err)
		}
		providers[d.Name] = p
	}
	return providers, nil
}

func llmProvider(ctx context.Context, name, apiKey string, pc config.ProviderConfig, prompts config.Prompts) (Provider, error) {
	clients, err := llm.NewClient(ctx, name, apiKey, pc)
	if err != nil {
		return nil, err
	}
	return NewLLMProvider(name, clients, prompts), nil
}
