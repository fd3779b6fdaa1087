package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGenerationUnavailable wraps any backend failure.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrGenerationEmpty means the backend answered without usable text.
	ErrGenerationEmpty = errors.New("generation returned no content")
)

// Generator produces a summary from a style prompt and the budgeted review
// content. One call is one logical generation; the result is opaque.
type Generator interface {
	Generate(ctx context.Context, stylePrompt, content string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, stylePrompt, content string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, stylePrompt, content string) (string, error) {
	return f(ctx, stylePrompt, content)
}

// backendError tags err as a generation failure while keeping the cause.
func backendError(backend string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrGenerationUnavailable, backend, err)
}

// usableText returns text unless it is blank.
func usableText(backend, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrGenerationEmpty, backend)
	}
	return text, nil
}

// ChatGenerator generates through the OpenAI-compatible HTTP Client: the
// style prompt is the system message and the content the user message.
type ChatGenerator struct {
	Client    Client
	Model     string
	MaxTokens int
}

func (g *ChatGenerator) Generate(ctx context.Context, stylePrompt, content string) (string, error) {
	resp, err := g.Client.ChatCompletion(ctx, &ChatRequest{
		Model: g.Model,
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: stylePrompt},
			{Role: RoleUser, Content: content},
		},
		MaxTokens: g.MaxTokens,
	})
	if err != nil {
		return "", backendError("chat", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat: provider returned no choices", ErrGenerationEmpty)
	}
	return usableText("chat", resp.Choices[0].Message.Content)
}
