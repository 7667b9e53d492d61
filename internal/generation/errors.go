package generation

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the generation package
var (
	// ErrTransientTransport is returned for network or proxy failures that may succeed on another transport
	ErrTransientTransport = errors.New("transient transport failure")

	// ErrSchemaValidation is returned when a completion parses but does not match the requested schema
	ErrSchemaValidation = errors.New("completion failed schema validation")

	// ErrExhaustedRetries is matched by every ExhaustedRetriesError
	ErrExhaustedRetries = errors.New("retries exhausted")

	// ErrInvalidRequest is returned for requests that can never succeed; they are not retried
	ErrInvalidRequest = errors.New("invalid completion request")

	// ErrContentBlocked is returned when the upstream refuses the content through its safety filters
	ErrContentBlocked = errors.New("content blocked by upstream safety filters")

	// ErrUpstream is matched by every UpstreamError
	ErrUpstream = errors.New("upstream returned an error response")

	// ErrNoTransport is returned when neither transport variant could be built
	ErrNoTransport = errors.New("no transport available")
)

// ExhaustedRetriesError is returned once all attempts and the free transport
// switch have been used. Err is the most recent underlying error.
type ExhaustedRetriesError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

// Unwrap exposes both ErrExhaustedRetries and the latest cause to errors.Is.
func (e *ExhaustedRetriesError) Unwrap() []error {
	return []error{ErrExhaustedRetries, e.Err}
}

// UpstreamError is a non-2xx response from the upstream API.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}

// Is reports ErrUpstream as a match.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// TransportRelated reports whether the status points at the network path
// rather than the upstream API: proxy authentication, request timeouts and
// gateway failures.
func (e *UpstreamError) TransportRelated() bool {
	switch e.StatusCode {
	case http.StatusProxyAuthRequired, http.StatusRequestTimeout, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Retryable reports whether the status is worth another attempt.
func (e *UpstreamError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}
