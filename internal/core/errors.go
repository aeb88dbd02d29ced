package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("edubot: not found")
	ErrNothingToAnswer = errors.New("edubot: no message to answer")
	ErrEmptyCompletion = errors.New("edubot: provider returned an empty completion")
	ErrNoContent       = errors.New("edubot: page has no summarisable content")
	ErrImageTooLarge   = errors.New("edubot: image too large")
	ErrNotConfigured   = errors.New("edubot: capability not configured")
)

// ProviderError wraps a failed completion-provider call. Messages ingested
// before the call stay persisted; no completion is recorded.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("completion provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ConfigError reports missing or invalid configuration. It is fatal at startup.
type ConfigError struct {
	Section string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s config: %v", e.Section, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
