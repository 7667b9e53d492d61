// Package generation executes structured-completion requests against an
// upstream AI service. It owns the retry loop, the single free transport
// switch between the direct and proxied network paths, error
// classification, and per-request telemetry. Concrete upstream backends
// implement the Completer interface and live under internal/platform.
package generation
