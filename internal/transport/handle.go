package transport

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Handle is a memoized client for one variant. It is immutable once built.
type Handle struct {
	// Variant is the network path this handle uses
	Variant Variant

	// HTTP is the client callers use for outbound requests
	HTTP *http.Client

	// Fingerprint is the configuration fingerprint the handle was built for
	Fingerprint string

	// BuiltAt records when the handle was constructed
	BuiltAt time.Time

	transport *http.Transport
}

// close releases idle keep-alive connections held by the handle.
func (h *Handle) close() {
	if h != nil && h.transport != nil {
		h.transport.CloseIdleConnections()
	}
}

// buildHandle constructs the client and its connection-reuse transport.
func buildHandle(variant Variant, cfg Config, fingerprint string, now time.Time) (*Handle, error) {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	tr := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	switch variant {
	case Direct:
		// Direct never inherits HTTP_PROXY from the environment.
		tr.Proxy = nil
	case Proxied:
		proxyURL, err := parseProxyURL(cfg.ProxyURL)
		if err != nil {
			return nil, err
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	default:
		return nil, fmt.Errorf("unknown transport variant %q", variant)
	}

	return &Handle{
		Variant:     variant,
		HTTP:        &http.Client{Transport: tr, Timeout: cfg.Timeout},
		Fingerprint: fingerprint,
		BuiltAt:     now,
		transport:   tr,
	}, nil
}

func parseProxyURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrProxyNotConfigured
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxyURL, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxyURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidProxyURL)
	}
	return u, nil
}
