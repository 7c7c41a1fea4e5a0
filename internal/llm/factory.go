package llm

import (
	"context"
	"fmt"

	"jinn/internal/config"
	"jinn/internal/logging"
)

// NewClientFromConfig builds the configured provider client and wraps it in
// a LimitedClient. It is called once at boot and the result injected.
func NewClientFromConfig(ctx context.Context, cfg *config.Config, model ModelResolver) (*LimitedClient, *GeminiClient, error) {
	switch cfg.LLM.Provider {
	case "gemini", "":
		gemini, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:         cfg.LLM.APIKey,
			Backend:        cfg.LLM.Gemini.Backend,
			Project:        cfg.LLM.Gemini.Project,
			Location:       cfg.LLM.Gemini.Location,
			BaseURL:        cfg.LLM.Gemini.BaseURL,
			ThinkingBudget: cfg.LLM.Gemini.ThinkingBudget,
		}, model)
		if err != nil {
			return nil, nil, err
		}
		logging.Boot("LLM client: gemini (rps=%.2f burst=%d timeout=%v)",
			cfg.LLM.RequestsPerSecond, cfg.LLM.Burst, cfg.GetLLMTimeout())
		return NewLimitedClient(gemini, cfg.LLM.RequestsPerSecond, cfg.LLM.Burst, cfg.GetLLMTimeout()), gemini, nil
	default:
		return nil, nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}
