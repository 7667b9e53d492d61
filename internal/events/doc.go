// Package events carries attempt-level telemetry from the structured
// completion executor to monitoring listeners.
//
// The primary components are:
// - TelemetryEvent: one logical request with every attempt it made
// - TelemetrySink: fans events out to registered listeners synchronously
// - Recorder: a bounded in-memory listener keeping the most recent events
//
// A listener that returns an error or panics is logged and skipped; it can
// never fail the request that produced the event.
package events
