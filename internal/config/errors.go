package config

import (
	"errors"
	"fmt"
)

const (
	EstimatorHeuristic = "heuristic"
	EstimatorTiktoken  = "tiktoken"
)

var errNonPositiveBudget = errors.New("token budgets and history size must be positive")

func errUnknownEstimator(name string) error {
	return fmt.Errorf("unknown token estimator %q (want %q or %q)", name, EstimatorHeuristic, EstimatorTiktoken)
}
