package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned after the retry budget for throttling
	// failures is exhausted.
	ErrRateLimited = errors.New("model invocation rate limited")

	// ErrInvocationFailed is returned for any non-throttling transport or
	// model failure. Never retried.
	ErrInvocationFailed = errors.New("model invocation failed")

	// ErrEmptyReply is returned when the model reply carries no content
	// blocks.
	ErrEmptyReply = errors.New("model returned no content")
)

// RateLimitedError is the terminal throttling error. It names the total
// number of attempts made so callers can log or surface it.
type RateLimitedError struct {
	Attempts int
	Last     error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("model throttled after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

func (e *RateLimitedError) Unwrap() error { return e.Last }
