package chunker

import "errors"

// Configuration and input errors.
var (
	// ErrInvalidChunkSize indicates chunk size is invalid (<=0)
	ErrInvalidChunkSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap indicates overlap value is invalid (<0)
	ErrInvalidOverlap = errors.New("chunk overlap must be non-negative")

	// ErrOverlapTooLarge indicates overlap is >= chunk size
	ErrOverlapTooLarge = errors.New("chunk overlap must be less than chunk size")

	// ErrNoSeparators indicates an empty separator list
	ErrNoSeparators = errors.New("at least one separator is required")

	// ErrFallbackNotLast indicates "" appears before the end of the list
	ErrFallbackNotLast = errors.New("the empty string separator must be last")
)
