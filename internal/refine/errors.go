package refine

import "errors"

var (
	// ErrInvalidOptions is returned when required callbacks or the attempt budget are missing
	ErrInvalidOptions = errors.New("invalid refinement options")

	// ErrNoUsableAttempt is for callers that receive a result with no best attempt
	ErrNoUsableAttempt = errors.New("no attempt produced a usable result")
)
