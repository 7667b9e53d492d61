package transport

import "errors"

// Error definitions for the transport package.
var (
	// ErrProxyNotConfigured is returned when a proxied handle is requested without a proxy URL
	ErrProxyNotConfigured = errors.New("proxy url is not configured")

	// ErrInvalidProxyURL is returned when the proxy URL cannot be used to build a transport
	ErrInvalidProxyURL = errors.New("invalid proxy url")

	// ErrProxyUnreachable is returned by probes that could not reach the upstream through the proxy
	ErrProxyUnreachable = errors.New("proxy unreachable")
)
