package memory

import (
	"math"
	"strings"
)

// Heuristic approximates language-model token counts without a tokenizer.
// It averages len/4 with 0.75 tokens per whitespace-delimited word, so the
// estimate never decreases as text is appended.
type Heuristic struct{}

func (Heuristic) Estimate(text string) int {
	return EstimateTokens(text)
}

func EstimateTokens(text string) int {
	byChars := float64(len(text)) / 4
	byWords := 0.75 * float64(len(strings.Fields(text)))
	return int(math.Round((byChars + byWords) / 2))
}
