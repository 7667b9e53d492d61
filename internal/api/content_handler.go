package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/phrazzld/scry-gen/internal/api/shared"
	"github.com/phrazzld/scry-gen/internal/domain"
	"github.com/phrazzld/scry-gen/internal/platform/logger"
	"github.com/phrazzld/scry-gen/internal/task"
)

// ContentGenerator is implemented by service.ContentService.
type ContentGenerator interface {
	GenerateExercises(ctx context.Context, specs []domain.ExerciseSpec) (*task.BatchResult[domain.Exercise], error)
	ExpandTranscript(ctx context.Context, req domain.TranscriptRequest) (*domain.Transcript, error)
}

// ContentHandler exposes the content use cases.
type ContentHandler struct {
	content ContentGenerator
	logger  *slog.Logger
}

// NewContentHandler creates the handler.
func NewContentHandler(content ContentGenerator, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		content: content,
		logger:  logger.With("component", "content_handler"),
	}
}

// GenerateExercises handles POST /api/exercises. Per-spec failures are part
// of the 200 response; only invalid input or cancellation fail the request.
func (h *ContentHandler) GenerateExercises(w http.ResponseWriter, r *http.Request) {
	var req GenerateExercisesRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "At least one spec is required", err)
		return
	}

	result, err := h.content.GenerateExercises(r.Context(), req.Specs)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to generate exercises")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("exercises generated",
		"requested", len(req.Specs),
		"succeeded", len(result.Success),
		"failed", len(result.Failed))
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// ExpandTranscript handles POST /api/transcripts.
func (h *ContentHandler) ExpandTranscript(w http.ResponseWriter, r *http.Request) {
	var req domain.TranscriptRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	transcript, err := h.content.ExpandTranscript(r.Context(), req)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to expand transcript")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, transcript)
}
