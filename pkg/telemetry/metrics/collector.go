package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "gateway"
)

// Collector holds the gateway's Prometheus instrumentation: dispatch
// outcomes, endpoint latency and cooldown transitions (§4.11). Unlike the
// teacher's Collector, there is no policy, cost or cache subsystem to wire
// since this gateway has none of those concerns.
type Collector struct {
	registry *prometheus.Registry

	dispatchTotal      *prometheus.CounterVec
	endpointLatencyMs  *prometheus.HistogramVec
	cooldownTotal      *prometheus.CounterVec
	endpointAvailable  *prometheus.GaugeVec
}

// NewCollector creates a Collector and registers its metrics with registry.
// If registry is nil, a fresh *prometheus.Registry is used.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total dispatch attempts by pool, provider and outcome.",
			},
			[]string{"pool", "provider", "outcome"},
		),
		endpointLatencyMs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "endpoint_latency_ms",
				Help:      "Upstream response latency in milliseconds for successful attempts.",
				Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
			},
			[]string{"pool", "provider"},
		),
		cooldownTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "endpoint_cooldown_total",
				Help:      "Total number of times an endpoint entered cooldown, by kind (full/short).",
			},
			[]string{"pool", "provider", "kind"},
		),
		endpointAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "endpoint_available",
				Help:      "1 if the endpoint is currently available for selection, 0 otherwise.",
			},
			[]string{"pool", "provider"},
		),
	}

	registry.MustRegister(c.dispatchTotal, c.endpointLatencyMs, c.cooldownTotal, c.endpointAvailable)
	return c
}

// RecordDispatch records the outcome of one dispatch attempt against one
// candidate endpoint.
func (c *Collector) RecordDispatch(pool, provider, outcome string) {
	c.dispatchTotal.WithLabelValues(pool, provider, outcome).Inc()
}

// RecordEndpointLatency records a successful upstream call's latency.
func (c *Collector) RecordEndpointLatency(pool, provider string, latencyMs float64) {
	c.endpointLatencyMs.WithLabelValues(pool, provider).Observe(latencyMs)
}

// RecordCooldown records an endpoint entering cooldown. kind is "full" or
// "short" (§4.2).
func (c *Collector) RecordCooldown(pool, provider, kind string) {
	c.cooldownTotal.WithLabelValues(pool, provider, kind).Inc()
}

// SetEndpointAvailable updates the availability gauge for one endpoint.
func (c *Collector) SetEndpointAvailable(pool, provider string, available bool) {
	v := 0.0
	if available {
		v = 1.0
	}
	c.endpointAvailable.WithLabelValues(pool, provider).Set(v)
}

// Registry returns the Prometheus registry backing this collector, for
// wiring into Handler/HandlerWithOptions.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
