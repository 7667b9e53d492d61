package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/phrazzld/scry-gen/internal/api/shared"
	"github.com/phrazzld/scry-gen/internal/domain"
	"github.com/phrazzld/scry-gen/internal/generation"
	"github.com/phrazzld/scry-gen/internal/redact"
	"github.com/phrazzld/scry-gen/internal/refine"
	"github.com/phrazzld/scry-gen/internal/service"
	"github.com/phrazzld/scry-gen/internal/store"
	"github.com/phrazzld/scry-gen/internal/task"
)

// StatusClientClosedRequest is reported when the caller went away first.
const StatusClientClosedRequest = 499

// MapErrorToStatusCode maps internal errors to HTTP status codes.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidBody),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, generation.ErrInvalidRequest),
		errors.Is(err, errInvalidQuery):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, generation.ErrContentBlocked):
		return http.StatusUnprocessableEntity

	case errors.Is(err, errStoreUnavailable):
		return http.StatusServiceUnavailable

	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, task.ErrItemTimeout):
		return http.StatusGatewayTimeout

	case errors.Is(err, generation.ErrExhaustedRetries),
		errors.Is(err, generation.ErrUpstream),
		errors.Is(err, generation.ErrNoTransport),
		errors.Is(err, refine.ErrNoUsableAttempt):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err. Only input
// validation messages are passed through, after redaction.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, shared.ErrInvalidBody):
		return "Invalid request body"
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, errInvalidQuery):
		return redact.Error(err)
	case errors.Is(err, store.ErrTelemetryEventNotFound):
		return "Telemetry event not found"
	case errors.Is(err, store.ErrNotFound):
		return "Not found"
	case errors.Is(err, errStoreUnavailable):
		return "Telemetry store is not configured"
	case errors.Is(err, generation.ErrContentBlocked):
		return "The upstream service refused the content"
	case errors.Is(err, context.Canceled):
		return "Request cancelled"
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, task.ErrItemTimeout):
		return "Generation timed out"
	case errors.Is(err, refine.ErrNoUsableAttempt):
		return "No attempt produced a usable result"
	case errors.Is(err, generation.ErrExhaustedRetries),
		errors.Is(err, generation.ErrUpstream),
		errors.Is(err, generation.ErrNoTransport):
		return "The upstream service is unavailable"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and safe message for err and logs
// the redacted original. fallback replaces the generic 500 message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
