package llm

import (
	"errors"
)

// ProviderError represents a failed model call (network, auth, quota).
// The client never retries these internally; callers re-trigger the
// operation if they want another attempt.
type ProviderError struct {
	err error

	// Transient marks errors that would likely succeed on a manual retry
	// (rate limits, 5xx). Auth and bad-request failures are not transient.
	Transient bool
}

func (e *ProviderError) Error() string {
	return e.err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.err
}

// NewProviderError wraps an error as a provider failure.
func NewProviderError(err error, transient bool) error {
	return &ProviderError{err: err, Transient: transient}
}

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsTransient reports whether err is a provider failure that may succeed
// on a manual retry.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}
