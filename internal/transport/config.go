package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Variant names one of the network paths to the upstream service.
type Variant string

// Available transport variants.
const (
	Direct  Variant = "direct"
	Proxied Variant = "proxied"
)

// String implements fmt.Stringer.
func (v Variant) String() string {
	return string(v)
}

// Other returns the alternative variant.
func (v Variant) Other() Variant {
	if v == Proxied {
		return Direct
	}
	return Proxied
}

// Defaults applied when Config fields are left zero.
const (
	DefaultHealthCheckInterval = 5 * time.Minute
	DefaultHealthCheckPath     = "/models"
	MaxProbeTimeout            = 5 * time.Second
)

// Config is the resolved network configuration supplied by the application
// config layer.
type Config struct {
	// BaseURL is the root of the upstream API, e.g. https://api.openai.com/v1
	BaseURL string

	// Timeout bounds a single outbound request. Zero means no client-level timeout.
	Timeout time.Duration

	// MaxRetries is the executor retry budget; part of the fingerprint so that
	// handles rebuild together with retry settings.
	MaxRetries int

	// Model is the default model name
	Model string

	// ProxyURL is the forward proxy; empty disables the proxied variant
	ProxyURL string

	// HealthCheckEnabled turns on active probing of the proxy
	HealthCheckEnabled bool

	// HealthCheckInterval is how long a health result stays valid
	HealthCheckInterval time.Duration

	// HealthCheckPath is requested relative to BaseURL by the default prober
	HealthCheckPath string
}

// HasProxy reports whether a proxy URL is configured.
func (c Config) HasProxy() bool {
	return strings.TrimSpace(c.ProxyURL) != ""
}

// Fingerprint derives a stable identifier over the fields that invalidate
// memoized clients: base URL, timeout, retry count, model, proxy URL and the
// health-check flag.
func (c Config) Fingerprint() string {
	raw := fmt.Sprintf("%s|%d|%d|%s|%s|%t",
		strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"),
		c.Timeout.Milliseconds(),
		c.MaxRetries,
		c.Model,
		strings.TrimSpace(c.ProxyURL),
		c.HealthCheckEnabled,
	)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

func (c Config) healthInterval() time.Duration {
	if c.HealthCheckInterval > 0 {
		return c.HealthCheckInterval
	}
	return DefaultHealthCheckInterval
}

// probeTimeout is min(MaxProbeTimeout, Timeout).
func (c Config) probeTimeout() time.Duration {
	if c.Timeout > 0 && c.Timeout < MaxProbeTimeout {
		return c.Timeout
	}
	return MaxProbeTimeout
}

func (c Config) healthURL() string {
	path := c.HealthCheckPath
	if path == "" {
		path = DefaultHealthCheckPath
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
