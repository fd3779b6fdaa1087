package cache

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKeyInput is returned when a key field is empty or the prompt
// type is not a recognized summary style.
var ErrInvalidKeyInput = errors.New("invalid key input")

// PromptType is the summary style part of a key.
type PromptType string

const (
	// PromptSentences is a short narrative paragraph.
	PromptSentences PromptType = "sentences"
	// PromptBullets is a bulleted list.
	PromptBullets PromptType = "bullets"
)

// promptAliases maps accepted spellings to their canonical style.
var promptAliases = map[string]PromptType{
	"sentences": PromptSentences,
	"paragraph": PromptSentences,
	"bullets":   PromptBullets,
}

// ParsePromptType returns the canonical style for s.
func ParsePromptType(s string) (PromptType, bool) {
	pt, ok := promptAliases[s]
	return pt, ok
}

// Valid reports whether p is one of the canonical styles.
func (p PromptType) Valid() bool {
	return p == PromptSentences || p == PromptBullets
}

// SummaryKey identifies one cached summary. It is serialized only at the
// storage boundary, see String.
type SummaryKey struct {
	ProductID  string
	Site       string
	PromptType PromptType
}

const keySeparator = ":"

// keyEscaper escapes the escape byte itself, the separator, and '/', which
// document stores reject in identifiers.
var (
	keyEscaper   = strings.NewReplacer("%", "%25", ":", "%3A", "/", "%2F")
	keyUnescaper = strings.NewReplacer("%25", "%", "%3A", ":", "%2F", "/")
)

// String converts the key into the identifier used by every backend:
// <PRODUCT_ID>:<SITE>:<PROMPT_TYPE>, with each field escaped so that a
// separator inside a field can never alias another key.
func (k SummaryKey) String() string {
	return keyEscaper.Replace(k.ProductID) + keySeparator +
		keyEscaper.Replace(k.Site) + keySeparator +
		keyEscaper.Replace(string(k.PromptType))
}

// ParseKey is the inverse of SummaryKey.String.
func ParseKey(s string) (SummaryKey, bool) {
	parts := strings.Split(s, keySeparator)
	if len(parts) != 3 {
		return SummaryKey{}, false
	}
	pt := PromptType(keyUnescaper.Replace(parts[2]))
	if !pt.Valid() {
		return SummaryKey{}, false
	}
	return SummaryKey{
		ProductID:  keyUnescaper.Replace(parts[0]),
		Site:       keyUnescaper.Replace(parts[1]),
		PromptType: pt,
	}, true
}

// KeyBuilder derives summary keys from request fields.
type KeyBuilder struct {
	// Fallback is used for unrecognized prompt types. Empty rejects them
	// with ErrInvalidKeyInput.
	Fallback PromptType
}

// NewKeyBuilder returns a builder for the given unknown-prompt-type policy:
// "" or "reject" rejects, otherwise the value names the fallback style.
func NewKeyBuilder(policy string) (KeyBuilder, error) {
	if policy == "" || policy == "reject" {
		return KeyBuilder{}, nil
	}
	pt, ok := ParsePromptType(policy)
	if !ok {
		return KeyBuilder{}, fmt.Errorf("unknown prompt type policy %q", policy)
	}
	return KeyBuilder{Fallback: pt}, nil
}

// Build validates the fields and returns the canonical key.
func (b KeyBuilder) Build(productID, site, promptType string) (SummaryKey, error) {
	if strings.TrimSpace(productID) == "" {
		return SummaryKey{}, fmt.Errorf("%w: product id is required", ErrInvalidKeyInput)
	}
	if strings.TrimSpace(site) == "" {
		return SummaryKey{}, fmt.Errorf("%w: site is required", ErrInvalidKeyInput)
	}

	pt, ok := ParsePromptType(promptType)
	if !ok {
		if b.Fallback == "" {
			return SummaryKey{}, fmt.Errorf("%w: unrecognized prompt type %q", ErrInvalidKeyInput, promptType)
		}
		pt = b.Fallback
	}

	return SummaryKey{
		ProductID:  productID,
		Site:       site,
		PromptType: pt,
	}, nil
}

// BuildKey builds a key with the strict policy.
func BuildKey(productID, site, promptType string) (SummaryKey, error) {
	return KeyBuilder{}.Build(productID, site, promptType)
}
