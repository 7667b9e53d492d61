package refine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-gen/internal/platform/logger"
)

// Decision is the verdict of ShouldRetry for one evaluated attempt.
type Decision struct {
	// Retry asks for another attempt with a rebuilt prompt
	Retry bool

	// Reason explains why the result is degraded; empty when it met the bar
	Reason string
}

// Options configures one refinement run. T is the generated artifact and E
// its evaluation.
type Options[T, E any] struct {
	BasePrompt  string
	MaxAttempts int

	// Generate produces an artifact for the prompt. An error means the
	// attempt yielded nothing; the loop moves on without changing state.
	Generate func(ctx context.Context, prompt string, attempt int) (T, error)

	// Evaluate measures an artifact
	Evaluate func(data T, attempt int) E

	// Score ranks evaluations; higher is better
	Score func(evaluation E) float64

	// ShouldRetry decides whether to try again after an evaluated attempt
	ShouldRetry func(evaluation E, attempt int) Decision

	// BuildRetryPrompt derives the next prompt from the current one
	BuildRetryPrompt func(current string, evaluation E, attempt int) string

	// Logger is optional; the context logger is used otherwise
	Logger *slog.Logger
}

func (o Options[T, E]) validate() error {
	switch {
	case o.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidOptions)
	case o.Generate == nil, o.Evaluate == nil, o.Score == nil, o.ShouldRetry == nil, o.BuildRetryPrompt == nil:
		return fmt.Errorf("%w: every callback is required", ErrInvalidOptions)
	}
	return nil
}

// Best is the highest-scoring attempt of a run.
type Best[T, E any] struct {
	Data       T
	Evaluation E
	Score      float64
	Attempt    int
}

// Result summarizes a run. Best is nil when no attempt generated anything,
// which callers must treat as a failure.
type Result[T, E any] struct {
	Attempts          int
	DegradationReason string
	Best              *Best[T, E]
}

// Execute runs the refinement loop. Best is replaced only by a strictly
// higher score, so it is never worse than any attempt observed. The only
// errors are invalid options and context cancellation.
func Execute[T, E any](ctx context.Context, opts Options[T, E]) (*Result[T, E], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.FromContext(ctx)
	}

	result := &Result[T, E]{}
	prompt := opts.BasePrompt

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Attempts = attempt

		data, err := opts.Generate(ctx, prompt, attempt)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			log.WarnContext(ctx, "refinement attempt produced nothing",
				"attempt", attempt,
				"max_attempts", opts.MaxAttempts,
				"error", err)
			continue
		}

		evaluation := opts.Evaluate(data, attempt)
		score := opts.Score(evaluation)
		if result.Best == nil || score > result.Best.Score {
			result.Best = &Best[T, E]{Data: data, Evaluation: evaluation, Score: score, Attempt: attempt}
		}

		decision := opts.ShouldRetry(evaluation, attempt)
		result.DegradationReason = decision.Reason
		log.DebugContext(ctx, "refinement attempt evaluated",
			"attempt", attempt,
			"score", score,
			"best_score", result.Best.Score,
			"retry", decision.Retry)

		if !decision.Retry || attempt == opts.MaxAttempts {
			break
		}
		prompt = opts.BuildRetryPrompt(prompt, evaluation, attempt)
	}

	if result.Best == nil && result.DegradationReason == "" {
		result.DegradationReason = ErrNoUsableAttempt.Error()
	}
	return result, nil
}
