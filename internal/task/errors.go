package task

import "errors"

// Common errors returned by the task package
var (
	// ErrItemTimeout is returned when one item attempt exceeds its deadline
	ErrItemTimeout = errors.New("item processing timeout")

	// ErrInvalidBatch is returned when ProcessBatch is called without a processor
	ErrInvalidBatch = errors.New("invalid batch")

	// ErrServiceReused is returned when a ConcurrencyService runs a second batch
	ErrServiceReused = errors.New("concurrency service already processed a batch")

	// ErrQueueClosed is returned when enqueueing into a closed queue
	ErrQueueClosed = errors.New("work queue is closed")

	// ErrQueueFull is returned when the queue buffer is exhausted
	ErrQueueFull = errors.New("work queue is full")
)
