package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgOfTokens(role Role, tokens int) Message {
	// 4 chars per token in the estimator
	return Message{Role: role, Content: strings.Repeat("x", tokens*4)}
}

func TestSelectWindowIdentityWhenUnderBudget(t *testing.T) {
	history := []Message{
		msgOfTokens(RoleUser, 10),
		msgOfTokens(RoleAssistant, 10),
		msgOfTokens(RoleUser, 10),
	}

	got := SelectWindow(history, 100)
	assert.Equal(t, history, got)
}

func TestSelectWindowDropsOldestFirst(t *testing.T) {
	history := []Message{
		msgOfTokens(RoleUser, 40),
		msgOfTokens(RoleAssistant, 40),
		msgOfTokens(RoleUser, 40),
		msgOfTokens(RoleAssistant, 40),
	}

	got := SelectWindow(history, 100)
	require.Len(t, got, 2)
	// The kept messages are the newest two, in original order.
	assert.Equal(t, history[2], got[0])
	assert.Equal(t, history[3], got[1])
}

func TestSelectWindowReturnsSuffix(t *testing.T) {
	history := []Message{
		msgOfTokens(RoleUser, 30),
		msgOfTokens(RoleAssistant, 5),
		msgOfTokens(RoleUser, 30),
		msgOfTokens(RoleAssistant, 5),
	}

	got := SelectWindow(history, 40)
	require.NotEmpty(t, got)
	// Contiguous suffix ending at the last element.
	assert.Equal(t, history[len(history)-len(got):], got)
}

func TestSelectWindowSingleOversizedMessage(t *testing.T) {
	history := []Message{
		msgOfTokens(RoleUser, 5),
		msgOfTokens(RoleAssistant, 500),
	}

	got := SelectWindow(history, 100)
	require.Len(t, got, 1)
	assert.Equal(t, history[1], got[0])
}

func TestSelectWindowIdempotent(t *testing.T) {
	history := []Message{
		msgOfTokens(RoleUser, 60),
		msgOfTokens(RoleAssistant, 60),
		msgOfTokens(RoleUser, 60),
	}

	first := SelectWindow(history, 100)
	second := SelectWindow(first, 100)
	assert.Equal(t, first, second)
}

func TestSelectWindowEmptyHistory(t *testing.T) {
	assert.Empty(t, SelectWindow(nil, 100))
}

func TestContextWindowBudget(t *testing.T) {
	w := NewContextWindow(0, -1)
	assert.Equal(t, DefaultMaxContextTokens, w.MaxTokens)
	assert.Equal(t, DefaultReserveTokens, w.ReserveTokens)
	assert.Equal(t, DefaultMaxContextTokens-DefaultReserveTokens, w.Budget())
}
