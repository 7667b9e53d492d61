package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-gen/internal/platform/logger"
	"github.com/phrazzld/scry-gen/internal/redact"
	"github.com/phrazzld/scry-gen/internal/retry"
)

// Config is the static configuration of a ConcurrencyService.
type Config struct {
	// MaxConcurrent is the number of workers; values below 1 mean 1
	MaxConcurrent int

	// RetryAttempts is the number of additional attempts per item
	RetryAttempts int

	// Timeout bounds each item attempt; zero disables it
	Timeout time.Duration

	// Backoff is the delay between an item's attempts, shared with the
	// request executor. A zero policy retries immediately.
	Backoff retry.Policy

	// CancelGrace is how long a worker waits for a timed-out invocation to
	// return after cancelling it; zero means DefaultCancelGrace. An
	// invocation still running after that is abandoned.
	CancelGrace time.Duration
}

// DefaultCancelGrace bounds the wait for a cancelled invocation.
const DefaultCancelGrace = 250 * time.Millisecond

// Processor handles one item and should honour ctx cancellation. On timeout
// the worker waits up to Config.CancelGrace for the cancelled invocation to
// return; one that ignores ctx keeps running in the background with its
// result discarded.
type Processor[I, O any] func(ctx context.Context, item I, index int) (O, error)

// ItemFailure records an item that failed every attempt.
type ItemFailure struct {
	Index int
	Err   error
}

// MarshalJSON renders the error as a redacted message.
func (f ItemFailure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Index int    `json:"index"`
		Error string `json:"error"`
	}{Index: f.Index, Error: redact.Error(f.Err)})
}

// BatchResult holds successful outputs in submission order and failures by index.
type BatchResult[O any] struct {
	Success []O           `json:"success"`
	Failed  []ItemFailure `json:"failed"`
}

type slot[O any] struct {
	value O
	err   error
	done  bool
}

type outcome[O any] struct {
	value O
	err   error
}

// ConcurrencyService runs exactly one batch with bounded concurrency.
type ConcurrencyService[I, O any] struct {
	logger  *slog.Logger
	cfg     Config
	rng     func() float64
	used    atomic.Bool
	tracker *tracker
}

// NewConcurrencyService creates a service for a single ProcessBatch call.
func NewConcurrencyService[I, O any](logger *slog.Logger, cfg Config) *ConcurrencyService[I, O] {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = DefaultCancelGrace
	}
	logger = logger.With("component", "concurrency_service")
	return &ConcurrencyService[I, O]{
		logger:  logger,
		cfg:     cfg,
		rng:     retry.Random,
		tracker: &tracker{logger: logger},
	}
}

// OnStatusUpdate registers fn to be called after every terminal item outcome.
// Listeners run synchronously on worker goroutines and must not block.
func (s *ConcurrencyService[I, O]) OnStatusUpdate(fn StatusListener) (unsubscribe func()) {
	return s.tracker.subscribe(fn)
}

// Status returns the latest snapshot.
func (s *ConcurrencyService[I, O]) Status() StatusSnapshot {
	return s.tracker.current()
}

// Progress returns the percentage of items with a terminal outcome.
func (s *ConcurrencyService[I, O]) Progress() int {
	return s.tracker.current().Progress()
}

// ProcessBatch processes items with at most MaxConcurrent in flight. Item
// failures are reported in the result, never as the returned error. If ctx
// is cancelled, unfinished items fail with the context error and the full
// result is returned together with ctx.Err().
func (s *ConcurrencyService[I, O]) ProcessBatch(ctx context.Context, items []I, process Processor[I, O]) (*BatchResult[O], error) {
	if process == nil {
		return nil, fmt.Errorf("%w: processor is required", ErrInvalidBatch)
	}
	if !s.used.CompareAndSwap(false, true) {
		return nil, ErrServiceReused
	}

	batchID := uuid.New()
	log := logger.FromContextOrDefault(ctx, s.logger).With("batch_id", batchID.String())
	total := len(items)
	s.tracker.start(total)

	log.InfoContext(ctx, "batch started",
		"total", total,
		"max_concurrent", s.cfg.MaxConcurrent,
		"retry_attempts", s.cfg.RetryAttempts,
		"timeout_ms", s.cfg.Timeout.Milliseconds())

	queue := NewQueue[int](total, log)
	for i := range items {
		if err := queue.Enqueue(i); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
		}
	}
	queue.Close()

	slots := make([]slot[O], total)
	workers := min(s.cfg.MaxConcurrent, max(total, 1))
	pool := NewWorkerPool[int](queue, WorkerPoolConfig{WorkerCount: workers}, log)
	pool.Run(ctx, func(ctx context.Context, workerID int, index int) {
		value, err := s.processItem(ctx, log, items[index], index, process)
		// Each index is owned by exactly one worker.
		slots[index] = slot[O]{value: value, err: err, done: true}
		s.tracker.record(err != nil)
	})

	result := &BatchResult[O]{
		Success: make([]O, 0, total),
		Failed:  make([]ItemFailure, 0),
	}
	for i, sl := range slots {
		switch {
		case !sl.done:
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			result.Failed = append(result.Failed, ItemFailure{Index: i, Err: err})
			s.tracker.record(true)
		case sl.err != nil:
			result.Failed = append(result.Failed, ItemFailure{Index: i, Err: sl.err})
		default:
			result.Success = append(result.Success, sl.value)
		}
	}

	log.InfoContext(ctx, "batch finished",
		"succeeded", len(result.Success),
		"failed", len(result.Failed))

	return result, ctx.Err()
}

// processItem runs up to 1+RetryAttempts attempts for one item.
func (s *ConcurrencyService[I, O]) processItem(ctx context.Context, log *slog.Logger, item I, index int, process Processor[I, O]) (O, error) {
	var (
		zero    O
		lastErr error
	)

	for attempt := 0; attempt <= s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := retry.Sleep(ctx, s.cfg.Backoff.Delay(attempt, s.rng)); err != nil {
				return zero, err
			}
		} else if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := s.attempt(ctx, item, index, process)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		log.WarnContext(ctx, "item attempt failed",
			"item_index", index,
			"attempt", attempt+1,
			"max_attempts", s.cfg.RetryAttempts+1,
			"error", redact.Error(err))
	}

	return zero, lastErr
}

// attempt races one processor invocation against the item timeout.
func (s *ConcurrencyService[I, O]) attempt(ctx context.Context, item I, index int, process Processor[I, O]) (O, error) {
	var zero O

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome[O], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[O]{err: fmt.Errorf("processor panicked: %v", r)}
			}
		}()
		value, err := process(attemptCtx, item, index)
		done <- outcome[O]{value: value, err: err}
	}()

	var timeout <-chan time.Time
	if s.cfg.Timeout > 0 {
		timer := time.NewTimer(s.cfg.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case out := <-done:
		return out.value, out.err
	case <-timeout:
		cancel()
		grace := time.NewTimer(s.cfg.CancelGrace)
		defer grace.Stop()
		select {
		case <-done:
		case <-grace.C:
			s.logger.Warn("abandoned item attempt that ignored cancellation",
				"item_index", index,
				"grace_ms", s.cfg.CancelGrace.Milliseconds())
		}
		return zero, fmt.Errorf("%w after %s", ErrItemTimeout, s.cfg.Timeout)
	case <-ctx.Done():
		cancel()
		select {
		case out := <-done:
			if out.err == nil {
				return out.value, nil
			}
		default:
		}
		return zero, ctx.Err()
	}
}
