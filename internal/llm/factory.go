package llm

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
)

// NewProvider creates a provider from configuration.
// An empty provider name returns (nil, nil): narration disabled.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	case "":
		return nil, nil
	default:
		return nil, errors.Newf("unknown LLM provider: %s (supported: openai, ollama)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(c model.LLMConfig) Config {
	cfg := DefaultConfig()
	cfg.Provider = c.Provider
	cfg.Model = c.Model
	cfg.APIKey = c.APIKey
	cfg.BaseURL = c.BaseURL
	cfg.Proxy = c.Proxy
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	if c.MaxTokens > 0 {
		cfg.MaxTokens = c.MaxTokens
	}
	return cfg
}
