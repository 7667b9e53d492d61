package task

import (
	"context"
	"log/slog"
	"sync"
)

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// WorkerPool runs a fixed number of workers over a shared queue. Each worker
// handles one job to completion before receiving the next.
type WorkerPool[J any] struct {
	queue       QueueReader[J]
	workerCount int
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// NewWorkerPool creates a worker pool with the specified configuration
func NewWorkerPool[J any](queue QueueReader[J], config WorkerPoolConfig, logger *slog.Logger) *WorkerPool[J] {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	return &WorkerPool[J]{
		queue:       queue,
		workerCount: workerCount,
		logger:      logger,
	}
}

// WorkerCount returns the number of workers Run starts.
func (p *WorkerPool[J]) WorkerCount() int {
	return p.workerCount
}

// Run starts the workers and blocks until the queue is closed and drained.
// Jobs are still delivered after ctx is cancelled; handle is expected to
// observe ctx and return promptly.
func (p *WorkerPool[J]) Run(ctx context.Context, handle func(ctx context.Context, workerID int, job J)) {
	p.logger.Debug("starting worker pool", "worker_count", p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i, handle)
	}
	p.wg.Wait()

	p.logger.Debug("worker pool drained", "worker_count", p.workerCount)
}

func (p *WorkerPool[J]) worker(ctx context.Context, id int, handle func(ctx context.Context, workerID int, job J)) {
	defer p.wg.Done()

	for job := range p.queue.GetChannel() {
		handle(ctx, id, job)
	}
}
