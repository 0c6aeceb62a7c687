package llm

import (
	"context"
	"errors"
	"fmt"

	"booking-assistant-backend/config"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// New builds the client selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is not configured")
	}
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
