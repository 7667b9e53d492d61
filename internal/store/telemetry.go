package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-gen/internal/events"
)

// TelemetryStore persists telemetry events for later audit. It is never
// consulted for retry decisions.
type TelemetryStore interface {
	// SaveEvent stores the event and its attempts atomically.
	SaveEvent(ctx context.Context, event *events.TelemetryEvent) error

	// GetEvent returns ErrTelemetryEventNotFound for unknown ids.
	GetEvent(ctx context.Context, id uuid.UUID) (*events.TelemetryEvent, error)

	// RecentEvents returns up to limit events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]*events.TelemetryEvent, error)

	// PurgeBefore deletes events created before cutoff and reports how many.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
