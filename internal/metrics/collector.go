// Package metrics exposes Prometheus instruments for routing and health, and
// persists per-server performance metrics as periodic YAML snapshots.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"switchyard/internal/api"
)

const namespace = "switchyard"

// Request outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeFailure = "failure"
)

// Collector owns the Prometheus instruments for the orchestrator. It uses a dedicated
// registry so tests and embedded use never collide with the global one.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	routed          *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	probes          *prometheus.CounterVec
	probeLatency    *prometheus.HistogramVec
	restarts        *prometheus.CounterVec
	inFlight        *prometheus.GaugeVec
	status          *prometheus.GaugeVec
}

// NewCollector creates and registers every instrument.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Delivery attempts per server, by outcome.",
		}, []string{"server", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of delivery attempts per server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"server"}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routed_requests_total",
			Help:      "Routing decisions by category and whether the selection was degraded.",
		}, []string{"category", "degraded"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Requests served by a fallback server.",
		}, []string{"server"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_probes_total",
			Help:      "Health probes per server, by result.",
		}, []string{"server", "healthy"}),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_probe_duration_seconds",
			Help:      "Round-trip time of successful health probes.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"server"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Automatic restart attempts per server.",
		}, []string{"server"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_requests",
			Help:      "Requests currently in flight per server.",
		}, []string{"server"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_status",
			Help:      "1 for the current status of each server, 0 otherwise.",
		}, []string{"server", "status"}),
	}

	c.registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.routed,
		c.fallbacks,
		c.probes,
		c.probeLatency,
		c.restarts,
		c.inFlight,
		c.status,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the registry for scraping.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveAttempt records one delivery attempt.
func (c *Collector) ObserveAttempt(server, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(server, outcome).Inc()
	c.requestDuration.WithLabelValues(server).Observe(d.Seconds())
}

// ObserveRouted records a routing decision.
func (c *Collector) ObserveRouted(category api.Category, degraded bool) {
	if c == nil {
		return
	}
	c.routed.WithLabelValues(string(category), strconv.FormatBool(degraded)).Inc()
}

// ObserveFallback records a request served by a fallback server.
func (c *Collector) ObserveFallback(server string) {
	if c == nil {
		return
	}
	c.fallbacks.WithLabelValues(server).Inc()
}

// ObserveProbe records a health probe result.
func (c *Collector) ObserveProbe(server string, result api.HealthCheckResult) {
	if c == nil {
		return
	}
	c.probes.WithLabelValues(server, strconv.FormatBool(result.Healthy)).Inc()
	if result.Healthy && result.ResponseTime != nil {
		c.probeLatency.WithLabelValues(server).Observe(result.ResponseTime.Seconds())
	}
}

// ObserveRestart records an automatic restart attempt.
func (c *Collector) ObserveRestart(server string) {
	if c == nil {
		return
	}
	c.restarts.WithLabelValues(server).Inc()
}

// SetInFlight publishes the in-flight counter of a server.
func (c *Collector) SetInFlight(server string, n int64) {
	if c == nil {
		return
	}
	c.inFlight.WithLabelValues(server).Set(float64(n))
}

// SetStatus marks status as the current one for server.
func (c *Collector) SetStatus(server string, status api.ServerStatus) {
	if c == nil {
		return
	}
	for _, s := range api.AllStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		c.status.WithLabelValues(server, string(s)).Set(v)
	}
}
