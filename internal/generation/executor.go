package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-gen/internal/events"
	"github.com/phrazzld/scry-gen/internal/platform/logger"
	"github.com/phrazzld/scry-gen/internal/redact"
	"github.com/phrazzld/scry-gen/internal/retry"
	"github.com/phrazzld/scry-gen/internal/transport"
	"golang.org/x/time/rate"
)

// DefaultMaxRetries is the attempt budget used when Config.MaxRetries is zero.
const DefaultMaxRetries = 3

// TransportSelector is the part of transport.Selector the executor depends on.
type TransportSelector interface {
	Preferred(ctx context.Context, cfg transport.Config) transport.Variant
	Client(variant transport.Variant, cfg transport.Config) (*transport.Handle, bool)
	MarkProxyFailure(err error)
}

// Config holds the resolved executor settings.
type Config struct {
	// Transport is passed to the selector on every request
	Transport transport.Config

	// MaxRetries is the number of budgeted attempts; the free transport
	// switch does not count against it
	MaxRetries int

	// Backoff computes the sleep between budgeted attempts
	Backoff retry.Policy

	// RequestsPerMinute throttles attempts when positive
	RequestsPerMinute int
}

// Option configures an Executor.
type Option func(*Executor)

// WithClassifier replaces DefaultClassifier.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) {
		e.classifier = c
	}
}

// WithRandom sets the jitter source used for backoff.
func WithRandom(rng func() float64) Option {
	return func(e *Executor) {
		e.rng = rng
	}
}

// WithSleep replaces the context-aware sleep between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

// Executor performs structured-completion requests with bounded retries and
// one free transport fallback, emitting a telemetry event per request.
type Executor struct {
	logger     *slog.Logger
	selector   TransportSelector
	completer  Completer
	emitter    events.Emitter
	classifier Classifier
	limiter    *rate.Limiter
	rng        func() float64
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	cfg        Config
}

// NewExecutor wires an executor. Every dependency is required.
func NewExecutor(
	logger *slog.Logger,
	selector TransportSelector,
	completer Completer,
	emitter events.Emitter,
	cfg Config,
	opts ...Option,
) (*Executor, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if selector == nil {
		return nil, errors.New("transport selector cannot be nil")
	}
	if completer == nil {
		return nil, errors.New("completer cannot be nil")
	}
	if emitter == nil {
		return nil, errors.New("telemetry emitter cannot be nil")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	e := &Executor{
		logger:     logger.With("component", "request_executor"),
		selector:   selector,
		completer:  completer,
		emitter:    emitter,
		classifier: DefaultClassifier{},
		rng:        retry.Random,
		sleep:      retry.Sleep,
		now:        time.Now,
		cfg:        cfg,
	}
	if cfg.RequestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the settings the executor was built with.
func (e *Executor) Config() Config {
	return e.cfg
}

// Invoke runs req until one attempt succeeds or the budget is exhausted.
//
// Attempts run in two nested loops: the outer loop walks the transport plan
// (preferred variant, then the other one when it can be built) and the inner
// loop spends the retry budget. A transport-classified failure on the first
// transport moves to the second without consuming budget; every other
// failure consumes budget and backs off. Fatal failures and caller
// cancellation return at once.
func (e *Executor) Invoke(ctx context.Context, req Request) (*Completion, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Label == "" {
		req.Label = "completion"
	}
	if req.Model == "" {
		req.Model = e.cfg.Transport.Model
	}

	log := logger.FromContextOrDefault(ctx, e.logger).With("label", req.Label)
	event := events.NewTelemetryEvent(req.Label)

	plan := e.plan(ctx)
	if len(plan) == 0 {
		return nil, e.fail(ctx, log, event, fmt.Errorf("%s: %w", req.Label, ErrNoTransport))
	}

	var (
		consumed int
		made     int
		lastErr  error
	)

transports:
	for step, handle := range plan {
		event.FallbackPath = append(event.FallbackPath, handle.Variant.String())
		canSwitch := step == 0 && len(plan) > 1

		for consumed < e.cfg.MaxRetries {
			made++
			start := e.now()
			completion, err := e.attempt(ctx, handle, req)
			event.Attempts = append(event.Attempts, events.AttemptRecord{
				Attempt:    made,
				Variant:    handle.Variant.String(),
				DurationMs: e.now().Sub(start).Milliseconds(),
				Success:    err == nil,
				Error:      redact.Error(err),
			})

			if err == nil {
				event.Success = true
				event.Usage = completion.Usage
				e.emitter.Emit(ctx, event)
				log.InfoContext(ctx, "completion succeeded",
					"attempt", made,
					"variant", handle.Variant,
					"backoff_ms", event.TotalBackoffMs)
				return completion, nil
			}
			lastErr = err

			if ctx.Err() != nil {
				return nil, e.fail(ctx, log, event, fmt.Errorf("%s cancelled: %w", req.Label, ctx.Err()))
			}

			class := e.classifier.Classify(err)
			log.WarnContext(ctx, "completion attempt failed",
				"attempt", made,
				"variant", handle.Variant,
				"class", class.String(),
				"error", redact.Error(err))

			if handle.Variant == transport.Proxied && class == ClassTransport {
				e.selector.MarkProxyFailure(err)
			}

			switch {
			case class == ClassFatal:
				return nil, e.fail(ctx, log, event, err)
			case class == ClassTransport && canSwitch:
				log.InfoContext(ctx, "switching transport",
					"from", handle.Variant,
					"to", plan[step+1].Variant)
				continue transports
			}

			consumed++
			if consumed >= e.cfg.MaxRetries {
				break transports
			}

			delay := e.cfg.Backoff.Delay(consumed, e.rng)
			event.TotalBackoffMs += delay.Milliseconds()
			if err := e.sleep(ctx, delay); err != nil {
				return nil, e.fail(ctx, log, event, fmt.Errorf("%s cancelled: %w", req.Label, err))
			}
		}
	}

	exhausted := &ExhaustedRetriesError{Label: req.Label, Attempts: made, Err: lastErr}
	return nil, e.fail(ctx, log, event, exhausted)
}

// plan returns the handles to try in order; at most one per variant.
func (e *Executor) plan(ctx context.Context) []*transport.Handle {
	preferred := e.selector.Preferred(ctx, e.cfg.Transport)
	handles := make([]*transport.Handle, 0, 2)
	for _, variant := range []transport.Variant{preferred, preferred.Other()} {
		if h, ok := e.selector.Client(variant, e.cfg.Transport); ok {
			handles = append(handles, h)
		}
	}
	return handles
}

// attempt performs one call with the per-attempt deadline merged into ctx.
func (e *Executor) attempt(ctx context.Context, handle *transport.Handle, req Request) (*Completion, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Transport.Timeout
	}
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	completion, err := e.completer.Complete(attemptCtx, handle.HTTP, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: attempt timeout after %s: %v", ErrTransientTransport, timeout, err)
		}
		return nil, err
	}
	if completion == nil {
		return nil, fmt.Errorf("%w: empty completion", ErrSchemaValidation)
	}

	if req.Decode != nil {
		if err := req.Decode(completion.Content); err != nil {
			if errors.Is(err, ErrSchemaValidation) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrSchemaValidation, err)
		}
	}
	return completion, nil
}

func (e *Executor) fail(ctx context.Context, log *slog.Logger, event *events.TelemetryEvent, err error) error {
	event.Success = false
	event.FinalError = redact.Error(err)
	e.emitter.Emit(ctx, event)
	log.ErrorContext(ctx, "completion failed",
		"attempts", event.AttemptCount(),
		"fallback_path", event.FallbackPath,
		"error", event.FinalError)
	return err
}
