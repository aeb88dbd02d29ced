package memory

import "github.com/sandevgo/edubot/internal/core"

// Window trims a chronological list of turns to a token budget.
type Window struct {
	estimator core.Estimator
	budget    int
}

func NewWindow(estimator core.Estimator, budget int) *Window {
	if estimator == nil {
		estimator = Heuristic{}
	}
	return &Window{estimator: estimator, budget: budget}
}

func (w *Window) Budget() int {
	return w.budget
}

// Build drops the oldest turns until the estimate of the rendered turns plus
// overhead fits the budget. The result is a contiguous suffix of turns in the
// original order. The most recent turn is always kept, even when it alone is
// over budget, so the provider never receives an empty conversation.
func (w *Window) Build(turns []core.Turn, overhead int) []core.Turn {
	if len(turns) == 0 {
		return nil
	}

	sizes := make([]int, len(turns))
	total := overhead
	for i, t := range turns {
		sizes[i] = w.estimator.Estimate(t.Render())
		total += sizes[i]
	}

	start := 0
	for total > w.budget && start < len(turns)-1 {
		total -= sizes[start]
		start++
	}

	return turns[start:]
}

// Estimate returns the total estimate of the rendered turns.
func (w *Window) Estimate(turns []core.Turn) int {
	total := 0
	for _, t := range turns {
		total += w.estimator.Estimate(t.Render())
	}
	return total
}
