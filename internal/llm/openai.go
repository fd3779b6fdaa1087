package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIGenerator generates through the official chat completions API.
type OpenAIGenerator struct {
	Client    *openai.Client
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // optional, e.g. "https://api.openai.com/v1"
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		Client:    openai.NewClientWithConfig(clientCfg),
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, stylePrompt, content string) (string, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	resp, err := g.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: stylePrompt},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
		MaxTokens: g.MaxTokens,
	})
	if err != nil {
		return "", backendError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai: no choices", ErrGenerationEmpty)
	}
	return usableText("openai", resp.Choices[0].Message.Content)
}
