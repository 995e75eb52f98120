package store

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector's length disagrees with
	// the store's pinned embedding dimension. The whole batch is rejected.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrLengthMismatch is returned when a chunk batch and its vector batch
	// have different lengths.
	ErrLengthMismatch = errors.New("chunks and vectors count mismatch")
)
