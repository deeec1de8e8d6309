package util

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes
var (
	// ErrStoreUnavailable indicates a database file cannot be opened or created
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidRule indicates a smart playlist rule outside the grammar
	ErrInvalidRule = errors.New("invalid smart playlist rule")

	// ErrClosed indicates use of a manager after Close
	ErrClosed = errors.New("database closed")
)

// StoreError reports which database file could not be used.
// It unwraps to ErrStoreUnavailable and to the underlying cause.
type StoreError struct {
	Name string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s database %s unavailable: %v", e.Name, e.Path, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}
