package llm

import (
	"context"
	"fmt"

	"storynerd/internal/config"
	"storynerd/internal/logging"
)

const nvidiaBaseURL = "https://integrate.api.nvidia.com/v1"

// New creates a completion client from config. Provider selection and
// API key resolution happen in the config layer; this only wires the
// chosen backend.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	provider := cfg.LLM.Provider
	logging.Boot("LLM backend: provider=%s model=%s", provider, cfg.LLM.Model)

	switch provider {
	case "gemini":
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.GetLLMTimeout(),
		})
	case "nvidia":
		base := cfg.LLM.BaseURL
		if base == "" || base == "https://api.openai.com/v1" {
			base = nvidiaBaseURL
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    base,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.GetLLMTimeout(),
			MaxRetries: cfg.LLM.MaxRetries,
		}), nil
	case "openai", "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.GetLLMTimeout(),
			MaxRetries: cfg.LLM.MaxRetries,
		}), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}
