package service

import "errors"

var (
	// ErrInvalidInput is returned before any upstream call when the caller's
	// input fails validation. The API layer maps it to 400.
	ErrInvalidInput = errors.New("invalid input")

	// ErrKindMismatch is returned when a generated exercise has a different
	// kind from the one requested. The item is retried.
	ErrKindMismatch = errors.New("generated exercise has the wrong kind")
)
