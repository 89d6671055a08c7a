package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Pipeline errors
var (
	// ErrDependencyMissing indicates a stage's required input artifact does
	// not exist yet. Never retried; the run fails before any completion call.
	ErrDependencyMissing = errors.New("required input artifact missing")

	// ErrNoLLMClient indicates no completion client was found in context.
	ErrNoLLMClient = errors.New("llm client not found in context")

	// ErrNoStore indicates no artifact store was found in context.
	ErrNoStore = errors.New("artifact store not found in context")

	// ErrRunCancelled indicates the build run was cancelled.
	ErrRunCancelled = errors.New("build run cancelled")
)

// Completion errors
var (
	// ErrCompletionTransient indicates a retryable completion failure
	// (network, timeout, rate limit).
	ErrCompletionTransient = errors.New("transient completion failure")

	// ErrCompletionFatal indicates a non-retryable completion failure
	// (auth, invalid request).
	ErrCompletionFatal = errors.New("fatal completion failure")

	// ErrEmptyCompletion indicates the model returned no content.
	ErrEmptyCompletion = errors.New("completion returned empty content")
)

// Template errors
var (
	// ErrPromptNotFound indicates the named prompt template does not exist.
	ErrPromptNotFound = errors.New("prompt template not found")

	// ErrMissingVariable indicates a prompt template referenced an
	// unsupplied variable.
	ErrMissingVariable = errors.New("missing template variable")
)

// StageError wraps a stage failure with the stage kind, iteration, and the
// underlying cause. It is the single failure shape the orchestrator reports
// for a run, so callers always learn which stage broke and why.
type StageError struct {
	Stage     StageKind // Stage that failed
	Iteration int       // Iteration in flight when the failure occurred
	Attempts  int       // Completion attempts made before giving up
	Err       error     // Underlying error
}

func (e *StageError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("stage %s (iteration %d): after %d attempts: %v", e.Stage, e.Iteration, e.Attempts, e.Err)
	}
	return fmt.Sprintf("stage %s (iteration %d): %v", e.Stage, e.Iteration, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError builds a StageError for a single-attempt failure.
func NewStageError(kind StageKind, iteration int, err error) *StageError {
	return &StageError{Stage: kind, Iteration: iteration, Attempts: 1, Err: err}
}

// IsTransient reports whether an error is a retryable completion failure.
// Context deadline expiry on the completion call counts as transient: a
// timed-out call is a failed call, never a successful empty result.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCompletionFatal) {
		return false
	}
	if errors.Is(err, ErrCompletionTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "temporarily unavailable") ||
		strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503")
}

// IsFatal reports whether an error is a completion failure that must not be
// retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCompletionFatal) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "invalid api key") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "invalid request")
}

// IsDependencyMissing reports whether an error is a missing-input failure.
func IsDependencyMissing(err error) bool {
	return errors.Is(err, ErrDependencyMissing)
}
