package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/phrazzld/scry-gen/internal/api/shared"
	"github.com/phrazzld/scry-gen/internal/platform/logger"
	"github.com/phrazzld/scry-gen/internal/transport"
)

// TransportController is the part of transport.Selector the API uses.
type TransportController interface {
	Preferred(ctx context.Context, cfg transport.Config) transport.Variant
	ProxyStatus(cfg transport.Config) transport.ProxyStatus
	ProbeCount() int64
	Reset(cfg transport.Config)
}

// TransportHandler serves the transport diagnostics endpoints.
type TransportHandler struct {
	selector TransportController
	cfg      transport.Config
	logger   *slog.Logger
}

// NewTransportHandler creates a handler reporting on cfg.
func NewTransportHandler(selector TransportController, cfg transport.Config, logger *slog.Logger) *TransportHandler {
	return &TransportHandler{
		selector: selector,
		cfg:      cfg,
		logger:   logger.With("component", "transport_handler"),
	}
}

// GetStatus handles GET /api/transport/status. With ?probe=true the
// selector resolves the preferred variant first, which may run a health
// check; otherwise the status is read without side effects.
func (h *TransportHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	probe := false
	if raw := r.URL.Query().Get("probe"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			HandleAPIError(w, r, errInvalidQueryf("probe must be a boolean"), "")
			return
		}
		probe = parsed
	}

	var preferred transport.Variant
	if probe {
		preferred = h.selector.Preferred(r.Context(), h.cfg)
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.status(preferred))
}

// Reset handles POST /api/transport/reset.
func (h *TransportHandler) Reset(w http.ResponseWriter, r *http.Request) {
	operator, _ := shared.GetOperator(r.Context())
	h.selector.Reset(h.cfg)

	logger.FromContextOrDefault(r.Context(), h.logger).Info("transport reset by operator",
		"operator", operator,
		"fingerprint", h.cfg.Fingerprint())
	shared.RespondWithJSON(w, r, http.StatusOK, h.status(""))
}

func (h *TransportHandler) status(preferred transport.Variant) TransportStatusResponse {
	return TransportStatusResponse{
		ProxyStatus: h.selector.ProxyStatus(h.cfg),
		Preferred:   preferred,
		ProbeCount:  h.selector.ProbeCount(),
	}
}
