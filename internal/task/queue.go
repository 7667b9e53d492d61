package task

import (
	"fmt"
	"log/slog"
	"sync"
)

// QueueReader gives workers read access to queued jobs.
type QueueReader[J any] interface {
	GetChannel() <-chan J
}

// Queue is a bounded FIFO of jobs backed by a buffered channel.
type Queue[J any] struct {
	mu     sync.Mutex
	jobs   chan J
	logger *slog.Logger
	closed bool
}

// NewQueue creates a queue that buffers up to size jobs.
func NewQueue[J any](size int, logger *slog.Logger) *Queue[J] {
	return &Queue[J]{
		jobs:   make(chan J, size),
		logger: logger,
	}
}

// Enqueue adds a job without blocking.
func (q *Queue[J]) Enqueue(job J) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// Close stops further submission. Workers drain what remains.
func (q *Queue[J]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.jobs)
		q.logger.Debug("work queue closed", "pending", len(q.jobs))
	}
}

// Len returns the number of jobs waiting.
func (q *Queue[J]) Len() int {
	return len(q.jobs)
}

// GetChannel returns a read-only channel for consuming jobs.
func (q *Queue[J]) GetChannel() <-chan J {
	return q.jobs
}
