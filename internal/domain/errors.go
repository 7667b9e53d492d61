package domain

import "errors"

var (
	// ErrValidation is returned when a domain value fails validation. It is
	// wrapped with the failing rule.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyContent is returned when required text is blank.
	ErrEmptyContent = errors.New("content cannot be empty")
)
