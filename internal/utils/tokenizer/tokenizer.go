// Package tokenizer approximates token counts for budget decisions. The
// estimate is ~4 characters per token, rounded up. It is a budget heuristic,
// not billing-accurate tokenization.
package tokenizer

// EstimateRatio is the assumed number of characters per token.
const EstimateRatio = 4

// Estimate returns the approximate token count of text.
func Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + EstimateRatio - 1) / EstimateRatio
}
