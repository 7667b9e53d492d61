package transport

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/scry-gen/internal/redact"
	"golang.org/x/sync/singleflight"
)

// HealthSnapshot is the cached result of the most recent proxy health check.
type HealthSnapshot struct {
	Healthy       bool      `json:"healthy"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	LastFailure   string    `json:"last_failure,omitempty"`
}

// ProxyStatus is a read-only view of the selector for observability.
type ProxyStatus struct {
	Configured         bool            `json:"configured"`
	HealthCheckEnabled bool            `json:"health_check_enabled"`
	ProxyURL           string          `json:"proxy_url,omitempty"`
	Health             *HealthSnapshot `json:"health,omitempty"`
	Fingerprint        string          `json:"fingerprint"`
	DirectBuilt        bool            `json:"direct_built"`
	ProxiedBuilt       bool            `json:"proxied_built"`
}

// Option configures a Selector.
type Option func(*Selector)

// WithProber replaces the default HTTP prober.
func WithProber(p Prober) Option {
	return func(s *Selector) {
		s.prober = p
	}
}

// WithClock sets the time source used for health-check expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		s.now = now
	}
}

// Selector memoizes transport handles and tracks proxy health.
type Selector struct {
	logger *slog.Logger
	prober Prober
	now    func() time.Time

	// Handles are swapped atomically; concurrent builds race benignly and
	// the last write wins.
	direct  atomic.Pointer[Handle]
	proxied atomic.Pointer[Handle]

	probes singleflight.Group
	probed atomic.Int64

	mu       sync.Mutex
	health   HealthSnapshot
	healthFP string
	checked  bool
}

// NewSelector creates a selector with no handles built yet.
func NewSelector(logger *slog.Logger, opts ...Option) *Selector {
	s := &Selector{
		logger: logger.With("component", "transport_selector"),
		prober: HTTPProber{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Selector) slot(variant Variant) *atomic.Pointer[Handle] {
	if variant == Proxied {
		return &s.proxied
	}
	return &s.direct
}

// Client returns the memoized handle for variant, rebuilding it only when the
// configuration fingerprint differs from the one it was built with. It
// returns false for Proxied when no proxy is configured or the transport
// could not be built.
func (s *Selector) Client(variant Variant, cfg Config) (*Handle, bool) {
	if variant == Proxied && !cfg.HasProxy() {
		return nil, false
	}

	fingerprint := cfg.Fingerprint()
	slot := s.slot(variant)
	if h := slot.Load(); h != nil && h.Fingerprint == fingerprint {
		return h, true
	}

	h, err := buildHandle(variant, cfg, fingerprint, s.now())
	if err != nil {
		s.logger.Warn("failed to build transport",
			"variant", variant,
			"proxy_url", redact.URL(cfg.ProxyURL),
			"error", redact.Error(err))
		return nil, false
	}

	if old := slot.Swap(h); old != nil {
		old.close()
		s.logger.Info("transport rebuilt after configuration change",
			"variant", variant,
			"old_fingerprint", old.Fingerprint,
			"fingerprint", fingerprint)
	} else {
		s.logger.Debug("transport built", "variant", variant, "fingerprint", fingerprint)
	}
	return h, true
}

// Preferred returns Proxied when a proxy is configured and healthy, otherwise Direct.
func (s *Selector) Preferred(ctx context.Context, cfg Config) Variant {
	if cfg.HasProxy() && s.IsProxyHealthy(ctx, cfg) {
		return Proxied
	}
	return Direct
}

// IsProxyHealthy reports proxy health, using the cached result when it was
// checked within the health-check interval. Otherwise one probe runs;
// concurrent callers share its result. With health checks disabled the
// proxy is assumed healthy unless a failure was recorded within the interval.
func (s *Selector) IsProxyHealthy(ctx context.Context, cfg Config) bool {
	if !cfg.HasProxy() {
		return false
	}

	fingerprint := cfg.Fingerprint()
	if healthy, ok := s.cachedHealth(fingerprint, cfg.healthInterval()); ok {
		return healthy
	}
	if !cfg.HealthCheckEnabled {
		return true
	}

	return s.sharedProbe(ctx, cfg, fingerprint)
}

// sharedProbe joins or starts the probe for fingerprint. The cache is checked
// again inside the flight because a caller that missed it may arrive just
// after another probe recorded its result.
func (s *Selector) sharedProbe(ctx context.Context, cfg Config, fingerprint string) bool {
	ch := s.probes.DoChan(fingerprint, func() (interface{}, error) {
		if healthy, ok := s.cachedHealth(fingerprint, cfg.healthInterval()); ok {
			return healthy, nil
		}
		return s.probe(cfg, fingerprint), nil
	})

	select {
	case res := <-ch:
		healthy, _ := res.Val.(bool)
		return healthy
	case <-ctx.Done():
		return false
	}
}

func (s *Selector) cachedHealth(fingerprint string, interval time.Duration) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checked || s.healthFP != fingerprint {
		return false, false
	}
	if s.now().Sub(s.health.LastCheckedAt) >= interval {
		return false, false
	}
	return s.health.Healthy, true
}

// probe runs detached from any caller context so that one caller giving up
// does not fail the shared result for the others.
func (s *Selector) probe(cfg Config, fingerprint string) bool {
	s.probed.Add(1)

	handle, ok := s.Client(Proxied, cfg)
	if !ok {
		s.record(fingerprint, ErrInvalidProxyURL)
		return false
	}

	timeout := cfg.probeTimeout()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := s.now()
	err := s.prober.Probe(ctx, handle.HTTP, cfg)
	s.record(fingerprint, err)

	if err != nil {
		s.logger.Warn("proxy health check failed",
			"proxy_url", redact.URL(cfg.ProxyURL),
			"timeout_ms", timeout.Milliseconds(),
			"error", redact.Error(err))
		return false
	}

	s.logger.Debug("proxy health check passed",
		"proxy_url", redact.URL(cfg.ProxyURL),
		"duration_ms", s.now().Sub(start).Milliseconds())
	return true
}

func (s *Selector) record(fingerprint string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checked = true
	s.healthFP = fingerprint
	s.health = HealthSnapshot{
		Healthy:       err == nil,
		LastCheckedAt: s.now(),
		LastFailure:   redact.Error(err),
	}
}

// MarkProxyFailure records an observed proxy failure immediately, so callers
// skip the proxy until the health-check interval elapses.
func (s *Selector) MarkProxyFailure(err error) {
	fingerprint := ""
	if h := s.proxied.Load(); h != nil {
		fingerprint = h.Fingerprint
	}

	s.mu.Lock()
	if fingerprint == "" {
		fingerprint = s.healthFP
	}
	s.mu.Unlock()

	s.record(fingerprint, err)
	s.logger.Warn("proxy marked unhealthy", "error", redact.Error(err))
}

// ProxyStatus returns a snapshot without probing.
func (s *Selector) ProxyStatus(cfg Config) ProxyStatus {
	fingerprint := cfg.Fingerprint()
	status := ProxyStatus{
		Configured:         cfg.HasProxy(),
		HealthCheckEnabled: cfg.HealthCheckEnabled,
		ProxyURL:           redact.URL(cfg.ProxyURL),
		Fingerprint:        fingerprint,
	}
	if h := s.direct.Load(); h != nil && h.Fingerprint == fingerprint {
		status.DirectBuilt = true
	}
	if h := s.proxied.Load(); h != nil && h.Fingerprint == fingerprint {
		status.ProxiedBuilt = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checked && s.healthFP == fingerprint {
		snapshot := s.health
		status.Health = &snapshot
	}
	return status
}

// ProbeCount returns how many health probes have run since construction.
func (s *Selector) ProbeCount() int64 {
	return s.probed.Load()
}

// Reset drops memoized handles and health state, then builds fresh handles for cfg.
func (s *Selector) Reset(cfg Config) {
	s.direct.Swap(nil).close()
	s.proxied.Swap(nil).close()

	s.mu.Lock()
	s.checked = false
	s.healthFP = ""
	s.health = HealthSnapshot{}
	s.mu.Unlock()

	s.Client(Direct, cfg)
	if cfg.HasProxy() {
		s.Client(Proxied, cfg)
	}
	s.logger.Info("transport selector reset", "fingerprint", cfg.Fingerprint())
}
