package query

import (
	"errors"
	"fmt"
)

// Errors returned by the query engine.
var (
	// ErrInvalidLimit is returned for non-positive chunk sizes, before any
	// network call is made.
	ErrInvalidLimit = errors.New("chunk size must be positive")

	// ErrContinuationLimit is returned when a single driver exceeds its
	// maximum continuation step count. It guards against servers that keep
	// returning a cursor forever.
	ErrContinuationLimit = errors.New("continuation limit exceeded")
)

// PartialBatchError reports the first chunk failure of a batch query. Chunks
// that completed before the failure are discarded; the caller must re-issue
// the whole logical query.
type PartialBatchError struct {
	// Operation is the query module that was executing.
	Operation string

	// FirstKey and LastKey bound the failing chunk.
	FirstKey string
	LastKey  string

	// Cursor is the continuation state at the time of failure.
	Cursor map[string]string

	Err error
}

// Error implements the error interface.
func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("batch query %q failed on chunk [%s .. %s]: %v",
		e.Operation, e.FirstKey, e.LastKey, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PartialBatchError) Unwrap() error {
	return e.Err
}
