package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AttemptRecord describes a single outbound call made for a logical request.
type AttemptRecord struct {
	// Attempt is the 1-based attempt number across all transports
	Attempt int `json:"attempt"`

	// Variant is the transport the attempt used ("direct" or "proxied")
	Variant string `json:"variant"`

	// DurationMs is the wall time of the attempt in milliseconds
	DurationMs int64 `json:"duration_ms"`

	// Success reports whether the attempt produced a valid result
	Success bool `json:"success"`

	// Error is the redacted failure message, empty on success
	Error string `json:"error,omitempty"`
}

// Usage reports token consumption as returned by the upstream service.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TelemetryEvent summarizes one logical structured-completion request.
type TelemetryEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Label names the caller-visible operation, e.g. "exercise" or "transcript_expansion"
	Label string `json:"label"`

	// Success reports whether the request eventually produced a result
	Success bool `json:"success"`

	// Attempts lists every attempt in the order it was made
	Attempts []AttemptRecord `json:"attempts"`

	// TotalBackoffMs is the sum of all backoff sleeps between attempts
	TotalBackoffMs int64 `json:"total_backoff_ms"`

	// FallbackPath lists the transports used, in order, e.g. ["proxied", "direct"]
	FallbackPath []string `json:"fallback_path"`

	// FinalError is the redacted terminal error for failed requests
	FinalError string `json:"final_error,omitempty"`

	// Usage is the token usage of the successful attempt, if reported
	Usage *Usage `json:"usage,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewTelemetryEvent creates an empty event for the given label.
func NewTelemetryEvent(label string) *TelemetryEvent {
	return &TelemetryEvent{
		ID:           uuid.New(),
		Label:        label,
		Attempts:     make([]AttemptRecord, 0, 4),
		FallbackPath: make([]string, 0, 2),
		CreatedAt:    time.Now().UTC(),
	}
}

// AttemptCount returns the number of attempts recorded.
func (e *TelemetryEvent) AttemptCount() int {
	return len(e.Attempts)
}

// Listener receives telemetry events.
type Listener interface {
	// HandleTelemetry processes the given event. Returned errors are logged
	// by the sink and never propagated to the emitter.
	HandleTelemetry(ctx context.Context, event *TelemetryEvent) error
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(ctx context.Context, event *TelemetryEvent) error

// HandleTelemetry implements Listener.
func (f ListenerFunc) HandleTelemetry(ctx context.Context, event *TelemetryEvent) error {
	return f(ctx, event)
}

// Emitter is the producer side of the sink.
type Emitter interface {
	Emit(ctx context.Context, event *TelemetryEvent)
}
