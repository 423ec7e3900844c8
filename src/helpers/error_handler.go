package helpers

import (
	"context"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type RelayError struct {
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// Distinct error kinds for errors.As checks
type ConfigurationError struct{ RelayError }
type NetworkError struct{ RelayError }
type UpstreamError struct{ RelayError }
type ValidationError struct{ RelayError }

// -----------------------------------------------------------------------------

func NewNetworkError(cause error, format string, args ...interface{}) error {
	return &NetworkError{RelayError{Message: fmt.Sprintf(format, args...), Cause: cause}}
}

func NewUpstreamError(cause error, format string, args ...interface{}) error {
	return &UpstreamError{RelayError{Message: fmt.Sprintf(format, args...), Cause: cause}}
}

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{RelayError{Message: fmt.Sprintf(format, args...)}}
}

func NewConfigurationError(cause error, format string, args ...interface{}) error {
	return &ConfigurationError{RelayError{Message: fmt.Sprintf(format, args...), Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff runs fn up to attempts times, doubling the delay between
// attempts. It gives up early when ctx is done.
func RetryWithBackoff[T any](ctx context.Context, attempts int, baseDelay time.Duration, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay * (1 << (attempt - 1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		res, err := fn(attempt)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}
