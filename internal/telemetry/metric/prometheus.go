// Package metric provides Prometheus metrics for DotVault.
//
// It exposes metrics in Prometheus format for monitoring transfer
// rates, rotation outcomes, request latencies, and system health.
package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dotvault"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Transfer metrics
	TransfersBegun     prometheus.Counter
	TransfersCompleted prometheus.Counter
	TransfersFailed    *prometheus.CounterVec
	SessionsActive     prometheus.Gauge
	SessionsSwept      prometheus.Counter

	// Rotation metrics
	RotationsIssued    prometheus.Counter
	RotationsConfirmed prometheus.Counter
	RotationsRejected  prometheus.Counter

	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RateLimitedTotal prometheus.Counter
}

var (
	globalOnce sync.Once
	global     *Registry
)

// NewRegistry creates a metrics registry with all application metrics
// registered. Process and Go runtime collectors are included.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,

		TransfersBegun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_begun_total",
			Help:      "Total number of transfer sessions begun.",
		}),
		TransfersCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_completed_total",
			Help:      "Total number of transfers finalized successfully.",
		}),
		TransfersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_failed_total",
			Help:      "Total number of failed transfer sessions by failure code.",
		}, []string{"code"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of transfer sessions currently in progress.",
		}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Total number of expired sessions settled by the sweeper.",
		}),

		RotationsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotations_issued_total",
			Help:      "Total number of key rotation scripts issued.",
		}),
		RotationsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotations_confirmed_total",
			Help:      "Total number of key rotations confirmed by the card.",
		}),
		RotationsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotations_rejected_total",
			Help:      "Total number of key rotations rejected by the card.",
		}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by rate limiting.",
		}),
	}

	reg.MustRegister(
		r.TransfersBegun,
		r.TransfersCompleted,
		r.TransfersFailed,
		r.SessionsActive,
		r.SessionsSwept,
		r.RotationsIssued,
		r.RotationsConfirmed,
		r.RotationsRejected,
		r.RequestsTotal,
		r.RequestDuration,
		r.RateLimitedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Global returns the process-wide registry, creating it on first use.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Prometheus exposes the underlying registry so other components,
// such as the storage engine, can register their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Handler returns the HTTP handler serving this registry in
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Handler returns the HTTP handler for the global registry.
func Handler() http.Handler {
	return Global().Handler()
}
