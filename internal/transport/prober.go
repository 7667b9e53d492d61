package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Prober performs one lightweight reachability check through a client.
type Prober interface {
	Probe(ctx context.Context, client *http.Client, cfg Config) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, client *http.Client, cfg Config) error

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, client *http.Client, cfg Config) error {
	return f(ctx, client, cfg)
}

// HTTPProber issues a GET to the configured health path. Any upstream
// response proves the proxy forwarded the request; only transport errors and
// proxy-generated failures count as unhealthy.
type HTTPProber struct{}

// Probe implements Prober.
func (HTTPProber) Probe(ctx context.Context, client *http.Client, cfg Config) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.healthURL(), nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProxyUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusProxyAuthRequired, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: proxy responded %d", ErrProxyUnreachable, resp.StatusCode)
	}
	return nil
}

var _ Prober = HTTPProber{}
