package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	apimiddleware "github.com/phrazzld/scry-gen/internal/api/middleware"
	"github.com/phrazzld/scry-gen/internal/store"
	"github.com/phrazzld/scry-gen/internal/transport"
)

// RouterConfig lists the router's dependencies. Logger, Selector and Recent
// are required; the rest switch optional routes on.
type RouterConfig struct {
	Logger    *slog.Logger
	Selector  TransportController
	Transport transport.Config
	Recent    RecentEventSource

	// Store backs ?source=store and event lookups past the recorder
	Store store.TelemetryStore

	// Content mounts the content endpoints behind operator auth
	Content ContentGenerator

	// Tokens validates operator bearer tokens; nil closes operator routes
	Tokens apimiddleware.TokenValidator

	// Metrics is served on GET /metrics
	Metrics http.Handler
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Selector == nil {
		return nil, errors.New("transport selector cannot be nil")
	}
	if cfg.Recent == nil {
		return nil, errors.New("recent event source cannot be nil")
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.NewTraceMiddleware(cfg.Logger))

	transportHandler := NewTransportHandler(cfg.Selector, cfg.Transport, cfg.Logger)
	telemetryHandler := NewTelemetryHandler(cfg.Recent, cfg.Store, cfg.Logger)
	authMiddleware := apimiddleware.NewAuthMiddleware(cfg.Tokens)

	r.Route("/api", func(r chi.Router) {
		r.Get("/transport/status", transportHandler.GetStatus)
		r.Get("/telemetry/recent", telemetryHandler.GetRecent)
		r.Get("/telemetry/{id}", telemetryHandler.GetEvent)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Post("/transport/reset", transportHandler.Reset)

			if cfg.Content != nil {
				contentHandler := NewContentHandler(cfg.Content, cfg.Logger)
				r.Post("/exercises", contentHandler.GenerateExercises)
				r.Post("/transcripts", contentHandler.ExpandTranscript)
			}
		})
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			cfg.Logger.Error("failed to write health check response", "error", err)
		}
	})

	return r, nil
}
