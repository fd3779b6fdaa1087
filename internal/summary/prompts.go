package summary

import (
	"fmt"

	"reblurb-gateway/internal/cache"
)

const (
	DefaultSentencesPrompt = "You are a product summarizer, capable of summarizing multiple product reviews into a single concise summary of what the reviews emphasize. Keep your response to 80 words or less. Individual product reviews are separated by the '|' character."
	DefaultBulletsPrompt   = "You are a product summarizer, capable of summarizing multiple product reviews into 3 bullet points or less. Keep your response to 80 words or less and use the standard bullet character. Separate bullet points with 2 newlines. Individual product reviews are separated by the '|' character."
)

// Prompts holds the system prompt for each summary style.
type Prompts struct {
	Sentences string
	Bullets   string
}

// DefaultPrompts returns the built-in prompt texts.
func DefaultPrompts() Prompts {
	return Prompts{Sentences: DefaultSentencesPrompt, Bullets: DefaultBulletsPrompt}
}

// For returns the prompt of a canonical style.
func (p Prompts) For(pt cache.PromptType) (string, error) {
	switch pt {
	case cache.PromptSentences:
		return p.Sentences, nil
	case cache.PromptBullets:
		return p.Bullets, nil
	default:
		return "", fmt.Errorf("%w: no prompt for style %q", cache.ErrInvalidKeyInput, pt)
	}
}
