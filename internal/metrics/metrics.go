// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec
	UpstreamErrors    *prometheus.CounterVec

	GateActive     prometheus.Gauge
	GateRejections prometheus.Counter

	Deliveries   *prometheus.CounterVec
	StreamAborts prometheus.Counter
	RelayedBytes *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "route"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratelimit_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "route"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ratelimit_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratelimit_proxy_upstream_request_duration_seconds",
			Help:    "Time to upstream response headers in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_proxy_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_proxy_upstream_errors_total",
			Help: "Upstream exchanges that failed before response headers, by reason.",
		}, []string{"reason"}),

		GateActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ratelimit_proxy_gate_active",
			Help: "1 while synthetic rate limiting is active.",
		}),

		GateRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_proxy_gate_rejections_total",
			Help: "Requests rejected with a synthetic 429.",
		}),

		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_proxy_deliveries_total",
			Help: "Relayed upstream responses by delivery mode.",
		}, []string{"mode"}),

		StreamAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_proxy_stream_aborts_total",
			Help: "Streamed responses truncated by an upstream read failure.",
		}),

		RelayedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_proxy_relayed_bytes_total",
			Help: "Response body bytes written to clients by delivery mode.",
		}, []string{"mode"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.UpstreamErrors,
		m.GateActive,
		m.GateRejections,
		m.Deliveries,
		m.StreamAborts,
		m.RelayedBytes,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownRoutes lists the paths the proxy serves itself.
var knownRoutes = []string{"/start_rate_limiting", "/end_rate_limiting", "/_proxy"}

// NormalizePath returns a bounded route label. Everything that is not served
// by the proxy itself is labelled "proxied".
func NormalizePath(path string) string {
	for _, prefix := range knownRoutes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return prefix
		}
	}
	return "proxied"
}
