package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/scry-gen/internal/api"
	"github.com/phrazzld/scry-gen/internal/config"
	"github.com/phrazzld/scry-gen/internal/events"
	"github.com/phrazzld/scry-gen/internal/generation"
	"github.com/phrazzld/scry-gen/internal/platform/gemini"
	"github.com/phrazzld/scry-gen/internal/platform/metrics"
	"github.com/phrazzld/scry-gen/internal/platform/openai"
	"github.com/phrazzld/scry-gen/internal/platform/postgres"
	"github.com/phrazzld/scry-gen/internal/retry"
	"github.com/phrazzld/scry-gen/internal/service"
	"github.com/phrazzld/scry-gen/internal/service/auth"
	"github.com/phrazzld/scry-gen/internal/task"
	"github.com/phrazzld/scry-gen/internal/transport"
)

// application holds the process-wide dependencies so they can be shared by
// the commands and cleaned up on shutdown.
type application struct {
	config    *config.Config
	logger    *slog.Logger
	transport transport.Config

	selector  *transport.Selector
	sink      *events.TelemetrySink
	recorder  *events.Recorder
	collector *metrics.Collector
	executor  *generation.Executor
	content   *service.ContentService

	// tokens is nil when no auth secret is configured
	tokens *auth.OperatorTokens

	// db and telemetryStore are set by attachDatabase
	db             *sql.DB
	telemetryStore *postgres.TelemetryStore
}

// appOption adjusts the application before the executor is built.
type appOption func(*appSettings)

type appSettings struct {
	selectorOpts []transport.Option
	executorOpts []generation.Option
}

func withSelectorOptions(opts ...transport.Option) appOption {
	return func(s *appSettings) {
		s.selectorOpts = append(s.selectorOpts, opts...)
	}
}

func withExecutorOptions(opts ...generation.Option) appOption {
	return func(s *appSettings) {
		s.executorOpts = append(s.executorOpts, opts...)
	}
}

// newApplication wires every component that does not need the database.
func newApplication(cfg *config.Config, logger *slog.Logger, opts ...appOption) (*application, error) {
	var settings appSettings
	for _, opt := range opts {
		opt(&settings)
	}

	app := &application{
		config:    cfg,
		logger:    logger,
		transport: transportConfig(cfg),
		recorder:  events.NewRecorder(events.DefaultRecorderSize),
		collector: metrics.NewCollector(metrics.DefaultNamespace),
	}

	app.selector = transport.NewSelector(logger, settings.selectorOpts...)
	app.collector.TrackProxy(app.selector, app.transport)

	app.sink = events.NewTelemetrySink(logger)
	app.sink.AddListener(app.recorder)
	app.sink.AddListener(app.collector)
	app.sink.AddListener(events.ListenerFunc(func(ctx context.Context, e *events.TelemetryEvent) error {
		logTelemetry(ctx, logger, e)
		return nil
	}))

	completer, err := newCompleter(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s completer: %w", cfg.LLM.Provider, err)
	}

	app.executor, err = generation.NewExecutor(logger, app.selector, completer, app.sink,
		executorConfig(cfg), settings.executorOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize request executor: %w", err)
	}

	app.content, err = service.NewContentService(logger, app.executor, service.ContentConfig{
		Batch: batchConfig(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize content service: %w", err)
	}
	app.content.OnBatchStatus(app.collector.BatchListener)

	if cfg.Auth.JWTSecret != "" {
		app.tokens, err = auth.NewOperatorTokens(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize operator tokens: %w", err)
		}
	}

	logger.Info("application initialized",
		"provider", cfg.LLM.Provider,
		"model", app.transport.Model,
		"proxy_configured", app.transport.HasProxy(),
		"fingerprint", app.transport.Fingerprint())
	return app, nil
}

// attachDatabase opens the telemetry database, applies pending migrations
// and subscribes the store to telemetry. It is a no-op without database.url.
func (app *application) attachDatabase(ctx context.Context) error {
	if app.config.Database.URL == "" {
		app.logger.Info("no database configured, telemetry is kept in memory only")
		return nil
	}

	db, err := postgres.Open(ctx, app.config.Database.URL, app.logger)
	if err != nil {
		return err
	}
	if err := postgres.Migrate(ctx, db, "up", app.logger); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	app.db = db
	app.telemetryStore = postgres.NewTelemetryStore(db)
	app.sink.AddListener(app.telemetryStore)
	return nil
}

// router builds the HTTP handler over the application's components.
func (app *application) router() (http.Handler, error) {
	rc := api.RouterConfig{
		Logger:    app.logger,
		Selector:  app.selector,
		Transport: app.transport,
		Recent:    app.recorder,
		Content:   app.content,
		Metrics:   app.collector.Handler(),
	}
	if app.tokens != nil {
		rc.Tokens = app.tokens
	}
	if app.telemetryStore != nil {
		rc.Store = app.telemetryStore
	}
	return api.NewRouter(rc)
}

// cleanup releases held resources.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", "error", err)
		} else {
			app.logger.Info("database connection closed")
		}
	}
}

func newCompleter(cfg config.LLMConfig) (generation.Completer, error) {
	temperature := cfg.Temperature
	switch cfg.Provider {
	case config.ProviderGemini:
		return gemini.New(gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.ResolvedModel(),
			BaseURL:     cfg.ResolvedBaseURL(),
			Temperature: &temperature,
		})
	case config.ProviderOpenAI:
		return openai.New(openai.Config{
			BaseURL:     cfg.ResolvedBaseURL(),
			APIKey:      cfg.APIKey,
			Model:       cfg.ResolvedModel(),
			Temperature: &temperature,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func transportConfig(cfg *config.Config) transport.Config {
	return transport.Config{
		BaseURL:             cfg.LLM.ResolvedBaseURL(),
		Timeout:             cfg.LLM.Timeout(),
		MaxRetries:          cfg.LLM.MaxRetries,
		Model:               cfg.LLM.ResolvedModel(),
		ProxyURL:            cfg.Transport.ProxyURL,
		HealthCheckEnabled:  cfg.Transport.HealthCheckEnabled,
		HealthCheckInterval: time.Duration(cfg.Transport.HealthCheckIntervalSeconds) * time.Second,
		HealthCheckPath:     cfg.Transport.HealthCheckPath,
	}
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		Base:        time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		Max:         time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		JitterRatio: cfg.Retry.JitterRatio,
	}
}

func executorConfig(cfg *config.Config) generation.Config {
	return generation.Config{
		Transport:         transportConfig(cfg),
		MaxRetries:        cfg.LLM.MaxRetries,
		Backoff:           retryPolicy(cfg),
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	}
}

func batchConfig(cfg *config.Config) task.Config {
	return task.Config{
		MaxConcurrent: cfg.Batch.MaxConcurrent,
		RetryAttempts: cfg.Batch.RetryAttempts,
		Timeout:       time.Duration(cfg.Batch.ItemTimeoutSeconds) * time.Second,
		Backoff:       retryPolicy(cfg),
	}
}

// logTelemetry writes one structured line per logical request.
func logTelemetry(ctx context.Context, logger *slog.Logger, e *events.TelemetryEvent) {
	level := slog.LevelInfo
	if !e.Success {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "completion telemetry",
		"event_id", e.ID.String(),
		"label", e.Label,
		"success", e.Success,
		"attempts", e.AttemptCount(),
		"total_backoff_ms", e.TotalBackoffMs,
		"fallback_path", e.FallbackPath,
		"final_error", e.FinalError)
}

var errNoDatabase = errors.New("database.url is not configured")
