package llm

import (
	"context"
	"errors"
	"fmt"
)

// Client abstracts the text-completion capability used by the routing
// pipeline. Implementations must be concurrency-safe if used across
// goroutines.
type Client interface {
	// Complete sends a single prompt and returns the raw text response.
	// When useSearchGrounding is true the backend consults live web search
	// before answering, so the response can cite real sources.
	Complete(ctx context.Context, prompt string, useSearchGrounding bool) (string, error)
	// SourceName returns a short provider label for logging (e.g. "Gemini").
	SourceName() string
}

// ErrorKind classifies a model call failure. Transport kinds are retryable;
// the rest are terminal.
type ErrorKind string

const (
	// ErrRateLimited means the backend rejected the call with a rate limit.
	ErrRateLimited ErrorKind = "rate_limited"
	// ErrUnavailable means a transient server-side failure.
	ErrUnavailable ErrorKind = "unavailable"
	// ErrTruncated means output was cut off before the requested JSON completed.
	ErrTruncated ErrorKind = "truncated"
	// ErrBlocked means a safety-policy refusal produced no content.
	ErrBlocked ErrorKind = "blocked"
	// ErrMalformed means the response could not be parsed after repair attempts.
	ErrMalformed ErrorKind = "malformed"
)

// ModelError is a classified failure from the model backend.
type ModelError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *ModelError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("model error (%s): %s", e.Kind, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("model error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("model error (%s)", e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, or "" if err is not a ModelError.
func KindOf(err error) ErrorKind {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Kind
	}
	return ""
}

// IsRetryable reports whether err is a transient transport failure worth
// another attempt. Blocked and malformed errors are never retried.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrRateLimited, ErrUnavailable, ErrTruncated:
		return true
	}
	return false
}
