package stringutils

import (
	"strings"
)

// DefaultTitleLength bounds titles derived from the first user message.
const DefaultTitleLength = 30

// DeriveTitle builds a fallback thread title from message content: the first
// DefaultTitleLength runes, with an ellipsis marker when truncated.
func DeriveTitle(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= DefaultTitleLength {
		return content
	}
	return string(runes[:DefaultTitleLength]) + "..."
}

// CleanStreamedTitle normalizes an incrementally streamed title chunk: quote
// characters are stripped and surrounding whitespace trimmed before the prefix
// is applied to the thread.
func CleanStreamedTitle(title string) string {
	title = strings.Map(func(r rune) rune {
		if r == '"' || r == '\'' {
			return -1
		}
		return r
	}, title)
	return strings.TrimSpace(title)
}
