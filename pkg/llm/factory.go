package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// New creates a Client for the configured provider.
func New(cfg *Config, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(cfg, logger)
	case "anthropic":
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
