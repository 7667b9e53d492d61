// Package metrics exposes telemetry events and batch progress as prometheus
// series. A Collector owns its registry so several can coexist in tests.
package metrics
