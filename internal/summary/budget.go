package summary

import (
	"strings"
	"unicode/utf8"
)

// DefaultDelimiter separates reviews in the budgeted content. The style
// prompts tell the model that reviews are separated by this character.
const DefaultDelimiter = "|"

// charsPerToken is the heuristic used to turn a token budget into a
// character budget.
const charsPerToken = 4

// CharLimit converts a model token limit, minus the tokens reserved for the
// response, into a character budget. Never negative.
func CharLimit(tokenLimit, reservedResponseTokens int) int {
	usable := tokenLimit - reservedResponseTokens
	if usable <= 0 {
		return 0
	}
	return charsPerToken * usable
}

// ContentBudgeter joins reviews into one delimited string that never
// exceeds a character budget.
//
// Reviews are taken in order. The first review that does not fit, and all
// reviews after it, are dropped whole. Characters are Unicode code points
// and the delimiters count against the budget. Empty reviews are skipped.
//
// A review that itself contains the delimiter is passed through unchanged,
// which makes the review boundaries ambiguous to the model.
type ContentBudgeter struct {
	Delimiter string
}

// Budget returns the joined content, or "" when nothing fits.
func (b ContentBudgeter) Budget(reviews []string, charLimit int) string {
	if len(reviews) == 0 || charLimit <= 0 {
		return ""
	}

	delim := b.Delimiter
	if delim == "" {
		delim = DefaultDelimiter
	}
	delimLen := utf8.RuneCountInString(delim)

	var sb strings.Builder
	used := 0
	for _, review := range reviews {
		if review == "" {
			continue
		}
		cost := utf8.RuneCountInString(review)
		if used > 0 {
			cost += delimLen
		}
		if used+cost > charLimit {
			break
		}
		if used > 0 {
			sb.WriteString(delim)
		}
		sb.WriteString(review)
		used += cost
	}
	return sb.String()
}

// Budget joins reviews with DefaultDelimiter under charLimit.
func Budget(reviews []string, charLimit int) string {
	return ContentBudgeter{}.Budget(reviews, charLimit)
}
