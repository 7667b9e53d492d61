package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/scry-gen/internal/domain"
	"github.com/phrazzld/scry-gen/internal/generation"
	"github.com/phrazzld/scry-gen/internal/platform/logger"
	"github.com/phrazzld/scry-gen/internal/refine"
	"github.com/phrazzld/scry-gen/internal/task"
)

// Default values applied by NewContentService.
const (
	DefaultTranscriptAttempts = 3
	DefaultMaxBatchSize       = 50
)

// Telemetry labels of the two use cases.
const (
	LabelExercise            = "exercise"
	LabelTranscriptExpansion = "transcript_expansion"
)

const (
	exerciseSystemPrompt   = "You write precise study exercises. Respond with a single JSON object that matches the provided schema."
	transcriptSystemPrompt = "You write clear spoken-style transcripts. Respond with the transcript text only, without headings or commentary."
)

// ContentConfig tunes the use cases.
type ContentConfig struct {
	// Batch configures each GenerateExercises call
	Batch task.Config

	// MaxBatchSize rejects larger exercise batches up front
	MaxBatchSize int

	// TranscriptAttempts is the default refinement budget
	TranscriptAttempts int

	// LengthTolerance is the accepted relative deviation from the target
	// word count; zero means refine.DefaultLengthTolerance
	LengthTolerance float64
}

// ContentService runs the content use cases on a shared executor.
type ContentService struct {
	logger   *slog.Logger
	executor *generation.Executor
	cfg      ContentConfig

	mu        sync.RWMutex
	listeners []func() task.StatusListener
}

// NewContentService creates the service.
func NewContentService(logger *slog.Logger, executor *generation.Executor, cfg ContentConfig) (*ContentService, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if executor == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.TranscriptAttempts <= 0 {
		cfg.TranscriptAttempts = DefaultTranscriptAttempts
	}
	return &ContentService{
		logger:   logger.With("component", "content_service"),
		executor: executor,
		cfg:      cfg,
	}, nil
}

// OnBatchStatus registers a listener factory. It is called once for every
// subsequent batch, so each listener observes exactly one batch.
func (s *ContentService) OnBatchStatus(newListener func() task.StatusListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, newListener)
}

// GenerateExercises produces one exercise per spec with bounded
// concurrency. Results keep the order of specs; failed specs are reported by
// index. The returned error is non-nil only for invalid input or a cancelled
// context.
func (s *ContentService) GenerateExercises(ctx context.Context, specs []domain.ExerciseSpec) (*task.BatchResult[domain.Exercise], error) {
	if len(specs) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d specs exceeds the batch limit of %d", ErrInvalidInput, len(specs), s.cfg.MaxBatchSize)
	}
	prompts := make([]string, len(specs))
	for i, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("%w: spec %d: %v", ErrInvalidInput, i, err)
		}
		p, err := spec.Prompt()
		if err != nil {
			return nil, fmt.Errorf("%w: spec %d: %v", ErrInvalidInput, i, err)
		}
		prompts[i] = p
	}

	batch := task.NewConcurrencyService[domain.ExerciseSpec, domain.Exercise](s.logger, s.cfg.Batch)
	s.mu.RLock()
	for _, newListener := range s.listeners {
		batch.OnStatusUpdate(newListener())
	}
	s.mu.RUnlock()

	return batch.ProcessBatch(ctx, specs, func(ctx context.Context, spec domain.ExerciseSpec, index int) (domain.Exercise, error) {
		ex, err := generation.InvokeStructured[domain.Exercise](ctx, s.executor, generation.Request{
			Label: LabelExercise,
			Messages: []generation.Message{
				{Role: generation.RoleSystem, Content: exerciseSystemPrompt},
				{Role: generation.RoleUser, Content: prompts[index]},
			},
		})
		if err != nil {
			return domain.Exercise{}, err
		}
		if !ex.Matches(spec) {
			return domain.Exercise{}, fmt.Errorf("%w: want %s, got %s", ErrKindMismatch, spec.Kind, ex.Kind)
		}
		return ex, nil
	})
}

// ExpandTranscript generates a transcript and refines it toward the target
// length. A run where no attempt produced text fails with
// refine.ErrNoUsableAttempt; a run that ends outside tolerance returns the
// best attempt marked as degraded.
func (s *ContentService) ExpandTranscript(ctx context.Context, req domain.TranscriptRequest) (*domain.Transcript, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	attempts := req.MaxAttempts
	if attempts <= 0 {
		attempts = s.cfg.TranscriptAttempts
	}

	var lastErr error
	result, err := refine.ExpandTranscript(ctx, refine.ExpansionConfig{
		Prompt:      req.Prompt(),
		TargetWords: req.TargetWords,
		MaxAttempts: attempts,
		Policy:      refine.LengthPolicy{Tolerance: s.cfg.LengthTolerance},
	}, func(ctx context.Context, prompt string, _ int) (string, error) {
		completion, err := s.executor.Invoke(ctx, generation.Request{
			Label: LabelTranscriptExpansion,
			Messages: []generation.Message{
				{Role: generation.RoleSystem, Content: transcriptSystemPrompt},
				{Role: generation.RoleUser, Content: prompt},
			},
		})
		if err != nil {
			lastErr = err
			return "", err
		}
		return completion.Content, nil
	})
	if err != nil {
		return nil, err
	}

	if result.Best == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("%w after %d attempts: %w", refine.ErrNoUsableAttempt, result.Attempts, lastErr)
		}
		return nil, fmt.Errorf("%w after %d attempts", refine.ErrNoUsableAttempt, result.Attempts)
	}

	best := result.Best
	out := &domain.Transcript{
		Topic:             req.Topic,
		Text:              best.Data,
		Words:             best.Evaluation.Words,
		TargetWords:       req.TargetWords,
		Attempts:          result.Attempts,
		BestAttempt:       best.Attempt,
		Degraded:          result.DegradationReason != "",
		DegradationReason: result.DegradationReason,
	}
	log.InfoContext(ctx, "transcript expanded",
		"words", out.Words,
		"target_words", out.TargetWords,
		"attempts", out.Attempts,
		"degraded", out.Degraded)
	return out, nil
}
