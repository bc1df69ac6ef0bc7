package chat

import (
	"openchat/internal/utils/tokenizer"
)

const (
	// DefaultMaxContextTokens is the assumed model context length when the
	// configuration does not override it.
	DefaultMaxContextTokens = 128000

	// DefaultReserveTokens is the headroom kept for the next completion.
	DefaultReserveTokens = 1000
)

// ContextWindow trims message histories to a token budget, dropping the oldest
// messages first.
type ContextWindow struct {
	MaxTokens     int
	ReserveTokens int
}

// NewContextWindow returns a ContextWindow with defaults applied for
// non-positive values.
func NewContextWindow(maxTokens, reserveTokens int) ContextWindow {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	if reserveTokens < 0 {
		reserveTokens = DefaultReserveTokens
	}
	return ContextWindow{MaxTokens: maxTokens, ReserveTokens: reserveTokens}
}

// Budget is the token allowance for history: the context length minus the
// reserve held back for the reply.
func (w ContextWindow) Budget() int {
	return w.MaxTokens - w.ReserveTokens
}

// Select returns the maximal suffix of messages whose estimated token sum fits
// the budget. When the whole history fits it is returned unchanged. When even
// the single most recent message exceeds the budget, that one message is
// returned anyway: callers tolerate slight overflow rather than sending zero
// context.
func (w ContextWindow) Select(messages []Message) []Message {
	return SelectWindow(messages, w.Budget())
}

// SelectWindow is the budget-parameterized form of Select.
func SelectWindow(messages []Message, budget int) []Message {
	if len(messages) == 0 {
		return messages
	}

	total := 0
	for i := range messages {
		total += tokenizer.Estimate(messages[i].Content)
	}
	if total <= budget {
		return messages
	}

	// Walk backward from the newest message, keeping messages while the
	// running total stays within budget.
	running := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := tokenizer.Estimate(messages[i].Content)
		if running+cost > budget {
			break
		}
		running += cost
		start = i
	}

	// Even the newest message alone is over budget.
	if start == len(messages) {
		return messages[len(messages)-1:]
	}

	return messages[start:]
}
