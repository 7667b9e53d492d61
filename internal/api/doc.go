// Package api exposes the diagnostics and content endpoints over HTTP. It
// translates requests into calls on the transport selector, the telemetry
// consumers and the content service, and maps their errors to status codes
// without leaking internal details.
package api
