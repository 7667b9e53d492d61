package api

import (
	"errors"

	"github.com/phrazzld/scry-gen/internal/domain"
	"github.com/phrazzld/scry-gen/internal/events"
	"github.com/phrazzld/scry-gen/internal/transport"
)

var (
	errInvalidQuery     = errors.New("invalid query parameter")
	errStoreUnavailable = errors.New("telemetry store unavailable")
)

// TransportStatusResponse is returned by the transport endpoints.
type TransportStatusResponse struct {
	transport.ProxyStatus

	// Preferred is set when the request asked for a health check
	Preferred transport.Variant `json:"preferred,omitempty"`

	// ProbeCount is the number of health probes run by this process
	ProbeCount int64 `json:"probe_count"`
}

// TelemetryListResponse is returned by GET /api/telemetry/recent.
type TelemetryListResponse struct {
	Source string                   `json:"source"`
	Count  int                      `json:"count"`
	Events []*events.TelemetryEvent `json:"events"`
}

// GenerateExercisesRequest is the body of POST /api/exercises.
type GenerateExercisesRequest struct {
	Specs []domain.ExerciseSpec `json:"specs" validate:"required,min=1"`
}
