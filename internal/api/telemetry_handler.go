package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-gen/internal/api/shared"
	"github.com/phrazzld/scry-gen/internal/events"
	"github.com/phrazzld/scry-gen/internal/store"
)

// Limits of GET /api/telemetry/recent.
const (
	DefaultTelemetryLimit = 20
	MaxTelemetryLimit     = 500
)

// Telemetry sources selectable with ?source=.
const (
	SourceMemory = "memory"
	SourceStore  = "store"
)

// RecentEventSource returns the newest events first.
type RecentEventSource interface {
	Recent(limit int) []*events.TelemetryEvent
}

// TelemetryHandler serves recorded telemetry events.
type TelemetryHandler struct {
	recent RecentEventSource
	store  store.TelemetryStore
	logger *slog.Logger
}

// NewTelemetryHandler creates the handler. store may be nil when no
// database is configured.
func NewTelemetryHandler(recent RecentEventSource, telemetryStore store.TelemetryStore, logger *slog.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		recent: recent,
		store:  telemetryStore,
		logger: logger.With("component", "telemetry_handler"),
	}
}

// GetRecent handles GET /api/telemetry/recent?limit=N&source=memory|store.
func (h *TelemetryHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = SourceMemory
	}

	var list []*events.TelemetryEvent
	switch source {
	case SourceMemory:
		list = h.recent.Recent(limit)
	case SourceStore:
		if h.store == nil {
			HandleAPIError(w, r, errStoreUnavailable, "")
			return
		}
		list, err = h.store.RecentEvents(r.Context(), limit)
		if err != nil {
			HandleAPIError(w, r, err, "Failed to load telemetry")
			return
		}
	default:
		HandleAPIError(w, r, errInvalidQueryf("source must be %q or %q", SourceMemory, SourceStore), "")
		return
	}

	if list == nil {
		list = []*events.TelemetryEvent{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TelemetryListResponse{
		Source: source,
		Count:  len(list),
		Events: list,
	})
}

// GetEvent handles GET /api/telemetry/{id}. The in-memory recorder is
// searched first, then the store.
func (h *TelemetryHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		HandleAPIError(w, r, errInvalidQueryf("id has invalid format"), "")
		return
	}

	for _, e := range h.recent.Recent(0) {
		if e.ID == id {
			shared.RespondWithJSON(w, r, http.StatusOK, e)
			return
		}
	}
	if h.store == nil {
		HandleAPIError(w, r, store.ErrTelemetryEventNotFound, "")
		return
	}

	event, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load telemetry event")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, event)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultTelemetryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > MaxTelemetryLimit {
		return 0, errInvalidQueryf("limit must be between 1 and %d", MaxTelemetryLimit)
	}
	return limit, nil
}

func errInvalidQueryf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidQuery, fmt.Sprintf(format, args...))
}
