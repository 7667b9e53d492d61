package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when a record violates a constraint.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTelemetryEventNotFound indicates an unknown telemetry event id.
	ErrTelemetryEventNotFound = fmt.Errorf("%w: telemetry event", ErrNotFound)
)

// StoreError adds the entity and operation to a failed store call.
type StoreError struct {
	Entity    string
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err with the entity and operation.
func NewStoreError(entity, operation string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Err: err}
}
