package events

import (
	"context"
	"sync"
)

// DefaultRecorderSize is the number of events kept when no size is given.
const DefaultRecorderSize = 200

// Recorder is a Listener that keeps the most recent events in memory for
// the diagnostics API.
type Recorder struct {
	mu     sync.Mutex
	events []*TelemetryEvent
	next   int
	full   bool
}

// NewRecorder creates a recorder holding at most size events.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}
	return &Recorder{events: make([]*TelemetryEvent, size)}
}

// HandleTelemetry implements Listener.
func (r *Recorder) HandleTelemetry(_ context.Context, event *TelemetryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.next] = event
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// Recent returns up to limit events, newest first. A non-positive limit
// returns everything held.
func (r *Recorder) Recent(limit int) []*TelemetryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	held := r.next
	if r.full {
		held = len(r.events)
	}
	if limit <= 0 || limit > held {
		limit = held
	}

	out := make([]*TelemetryEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.events)) % len(r.events)
		out = append(out, r.events[idx])
	}
	return out
}

var _ Listener = (*Recorder)(nil)
