package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// TelemetrySink dispatches events to registered listeners in registration order.
type TelemetrySink struct {
	mu        sync.RWMutex
	listeners []*subscription
	logger    *slog.Logger
}

type subscription struct {
	listener Listener
}

// NewTelemetrySink creates a new sink with no listeners.
func NewTelemetrySink(logger *slog.Logger) *TelemetrySink {
	return &TelemetrySink{
		listeners: make([]*subscription, 0),
		logger:    logger.With("component", "telemetry_sink"),
	}
}

// AddListener registers a listener and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (s *TelemetrySink) AddListener(listener Listener) (unsubscribe func()) {
	sub := &subscription{listener: listener}

	s.mu.Lock()
	s.listeners = append(s.listeners, sub)
	count := len(s.listeners)
	s.mu.Unlock()

	s.logger.Debug("registered telemetry listener", "listener_count", count)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, candidate := range s.listeners {
				if candidate == sub {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// ListenerCount returns the number of registered listeners.
func (s *TelemetrySink) ListenerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Emit invokes every listener synchronously. Listener errors and panics are
// logged and swallowed so a broken consumer cannot break request execution.
func (s *TelemetrySink) Emit(ctx context.Context, event *TelemetryEvent) {
	if event == nil {
		return
	}

	s.mu.RLock()
	listeners := make([]*subscription, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for i, sub := range listeners {
		if err := s.dispatch(ctx, sub.listener, event); err != nil {
			s.logger.ErrorContext(ctx, "telemetry listener failed",
				"error", err,
				"listener_index", i,
				"event_id", event.ID,
				"label", event.Label)
		}
	}
}

func (s *TelemetrySink) dispatch(ctx context.Context, listener Listener, event *TelemetryEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return listener.HandleTelemetry(ctx, event)
}

var _ Emitter = (*TelemetrySink)(nil)
