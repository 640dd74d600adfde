package story

import "errors"

var (
	// ErrNotFound is returned when no story matches the lookup.
	ErrNotFound = errors.New("story not found")
	// ErrConflict means the story changed since the caller last read it.
	// Reload and retry.
	ErrConflict = errors.New("story was modified by another writer")
	// ErrInvalid wraps input validation failures.
	ErrInvalid = errors.New("invalid story input")
)
