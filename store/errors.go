package store

import (
	"errors"
	"fmt"
)

// Store errors
var (
	// ErrNotFound indicates no artifact of the requested kind exists yet.
	ErrNotFound = errors.New("artifact not found")

	// ErrRunNotFound indicates the run id has not been registered.
	ErrRunNotFound = errors.New("run not found")

	// ErrConflict indicates a write targeted an existing (kind, iteration)
	// key with different content. Iterations are the only legitimate way to
	// create a new version, so conflicting writes are never merged or
	// retried.
	ErrConflict = errors.New("artifact version conflict")

	// ErrInvalidKind indicates an unknown stage kind.
	ErrInvalidKind = errors.New("invalid stage kind")
)

// StorageError wraps a filesystem failure with the operation and path.
type StorageError struct {
	Op   string // Operation that failed (e.g., "put", "log-append")
	Path string // Path involved
	Err  error  // Underlying error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether an error is a version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether an error is a missing artifact or run.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrRunNotFound)
}
