package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the retrieval core. Typed errors below unwrap to these,
// so callers can branch with errors.Is.
var (
	// ErrChunking indicates an invalid chunker configuration. Fatal.
	ErrChunking = errors.New("invalid chunking configuration")

	// ErrDimensionMismatch indicates an embedding model/store mismatch. Fatal.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyStore indicates no stored entry matched the search filter.
	// It means "no results", not a failure of the store.
	ErrEmptyStore = errors.New("no entries match")

	// ErrEmbeddingUnavailable indicates the embedding provider could not serve a request.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrInvalidQuery indicates an empty or whitespace-only query.
	ErrInvalidQuery = errors.New("invalid query")

	ErrNotFound = errors.New("not found")
)

// ChunkingError reports a rejected window/overlap combination.
type ChunkingError struct {
	Window  int
	Overlap int
	Reason  string
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking: %s (window=%d, overlap=%d)", e.Reason, e.Window, e.Overlap)
}

func (e *ChunkingError) Unwrap() error { return ErrChunking }

// DimensionMismatchError reports a vector whose length disagrees with the store.
// Corrupt is set when the offending vector was already persisted.
type DimensionMismatchError struct {
	Expected int
	Got      int
	ChunkID  string
	Corrupt  bool
}

func (e *DimensionMismatchError) Error() string {
	msg := fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
	if e.ChunkID != "" {
		msg += " (chunk " + e.ChunkID + ")"
	}
	if e.Corrupt {
		msg = "store corrupt: " + msg
	}
	return msg
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// EmbeddingError wraps a provider failure. Transient failures (timeouts,
// rate limits, 5xx, connection errors) may be retried by the caller.
type EmbeddingError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *EmbeddingError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s: %s (%s): %v", ErrEmbeddingUnavailable, e.Op, kind, e.Err)
}

func (e *EmbeddingError) Unwrap() []error { return []error{ErrEmbeddingUnavailable, e.Err} }

// IsTransient reports whether err carries a transient embedding failure.
func IsTransient(err error) bool {
	var ee *EmbeddingError
	if errors.As(err, &ee) {
		return ee.Transient
	}
	return false
}
