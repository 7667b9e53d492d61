package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/phrazzld/scry-gen/internal/events"
	"github.com/phrazzld/scry-gen/internal/task"
	"github.com/phrazzld/scry-gen/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every series.
const DefaultNamespace = "scry_gen"

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Collector turns telemetry events and batch snapshots into prometheus metrics.
type Collector struct {
	registry  *prometheus.Registry
	namespace string

	requests        *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	backoff         *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	tokens          *prometheus.CounterVec
	batchItems      *prometheus.CounterVec
	batchProgress   prometheus.Gauge

	proxyOnce sync.Once
}

// NewCollector creates a collector registered on a fresh registry. An empty
// namespace means DefaultNamespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		registry:  prometheus.NewRegistry(),
		namespace: namespace,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_requests_total",
				Help:      "Logical structured-completion requests by outcome",
			},
			[]string{"label", "outcome"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_attempts_total",
				Help:      "Outbound completion attempts by transport and outcome",
			},
			[]string{"label", "variant", "outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "completion_attempt_duration_seconds",
				Help:      "Wall time of a single completion attempt",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"variant"},
		),
		backoff: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_backoff_seconds_total",
				Help:      "Time spent sleeping between attempts",
			},
			[]string{"label"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_fallbacks_total",
				Help:      "Requests that switched transport at least once",
			},
			[]string{"label"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_tokens_total",
				Help:      "Tokens reported by the upstream service",
			},
			[]string{"kind"},
		),
		batchItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_items_total",
				Help:      "Batch items with a terminal outcome",
			},
			[]string{"outcome"},
		),
		batchProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "batch_progress_percent",
				Help:      "Progress of the most recently updated batch",
			},
		),
	}

	c.registry.MustRegister(
		c.requests,
		c.attempts,
		c.attemptDuration,
		c.backoff,
		c.fallbacks,
		c.tokens,
		c.batchItems,
		c.batchProgress,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// HandleTelemetry implements events.Listener.
func (c *Collector) HandleTelemetry(_ context.Context, event *events.TelemetryEvent) error {
	if event == nil {
		return nil
	}

	c.requests.WithLabelValues(event.Label, outcome(event.Success)).Inc()
	for _, a := range event.Attempts {
		c.attempts.WithLabelValues(event.Label, a.Variant, outcome(a.Success)).Inc()
		c.attemptDuration.WithLabelValues(a.Variant).Observe(float64(a.DurationMs) / 1000)
	}
	if event.TotalBackoffMs > 0 {
		c.backoff.WithLabelValues(event.Label).Add(float64(event.TotalBackoffMs) / 1000)
	}
	if len(event.FallbackPath) > 1 {
		c.fallbacks.WithLabelValues(event.Label).Inc()
	}
	if u := event.Usage; u != nil {
		c.tokens.WithLabelValues("prompt").Add(float64(u.PromptTokens))
		c.tokens.WithLabelValues("completion").Add(float64(u.CompletionTokens))
	}
	return nil
}

// BatchListener returns a task.StatusListener for one batch. Snapshots are
// converted into counter increments relative to the previous snapshot.
func (c *Collector) BatchListener() task.StatusListener {
	var (
		mu   sync.Mutex
		last task.StatusSnapshot
	)
	return func(s task.StatusSnapshot) {
		mu.Lock()
		defer mu.Unlock()

		if d := s.Completed - last.Completed; d > 0 {
			c.batchItems.WithLabelValues(outcomeSuccess).Add(float64(d))
		}
		if d := s.Failed - last.Failed; d > 0 {
			c.batchItems.WithLabelValues(outcomeFailure).Add(float64(d))
		}
		c.batchProgress.Set(float64(s.Progress()))
		last = s
	}
}

// ProxySource reports live transport state without probing.
type ProxySource interface {
	ProxyStatus(cfg transport.Config) transport.ProxyStatus
	ProbeCount() int64
}

// TrackProxy registers gauges reading from src at scrape time. Only the first
// call has any effect.
func (c *Collector) TrackProxy(src ProxySource, cfg transport.Config) {
	c.proxyOnce.Do(func() {
		c.registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Namespace: c.namespace,
					Name:      "proxy_healthy",
					Help:      "1 if the last proxy health check passed, 0 if it failed, -1 if unknown",
				},
				func() float64 {
					status := src.ProxyStatus(cfg)
					switch {
					case status.Health == nil:
						return -1
					case status.Health.Healthy:
						return 1
					default:
						return 0
					}
				},
			),
			prometheus.NewCounterFunc(
				prometheus.CounterOpts{
					Namespace: c.namespace,
					Name:      "proxy_probes_total",
					Help:      "Proxy health probes issued",
				},
				func() float64 { return float64(src.ProbeCount()) },
			),
		)
	})
}

func outcome(success bool) string {
	if success {
		return outcomeSuccess
	}
	return outcomeFailure
}
