package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderCompatible = "compatible"
)

// GeneratorConfig selects and configures a generation backend.
type GeneratorConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

// NewGenerator builds the configured backend. The compatible provider
// uses the in-house HTTP client against any OpenAI-style endpoint and
// returns a Generator that also implements Close() error.
func NewGenerator(cfg GeneratorConfig, logger *zap.Logger) (Generator, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		gen, err := NewOpenAIGenerator(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return gen, nil
	case ProviderAnthropic:
		gen, err := NewAnthropicGenerator(AnthropicConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxTokens:  cfg.MaxTokens,
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return gen, nil
	case ProviderCompatible:
		retries := cfg.MaxRetries
		if retries == 0 {
			retries = -1 // ClientConfig treats 0 as "use default"
		}
		client, err := NewClient(ClientConfig{
			BaseURL:         cfg.BaseURL,
			APIKey:          cfg.APIKey,
			UpstreamTimeout: cfg.Timeout,
			MaxRetries:      retries,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &closingChatGenerator{
			ChatGenerator: ChatGenerator{Client: client, Model: cfg.Model, MaxTokens: cfg.MaxTokens},
		}, nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

type closingChatGenerator struct {
	ChatGenerator
}

func (g *closingChatGenerator) Close() error {
	if closer, ok := g.Client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
