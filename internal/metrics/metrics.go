// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// hopBuckets covers every possible hop count of a completed chain.
var hopBuckets = prometheus.LinearBuckets(0, 1, 11)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	RedirectHops          prometheus.Histogram
	RedirectLimitExceeded prometheus.Counter
	ProxyOutcomes         *prometheus.CounterVec
}

// OutcomeKey is the echo.Context key under which the proxy handler stores
// the outcome of a request.
const OutcomeKey = "proxy_outcome"

// Proxy request outcomes.
const (
	OutcomeForwarded     = "forwarded"
	OutcomePreflight     = "preflight"
	OutcomeRejected      = "rejected"
	OutcomeRedirectLimit = "redirect_limit"
	OutcomeFailed        = "failed"
)

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirect_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redirect_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redirect_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redirect_proxy_upstream_request_duration_seconds",
			Help:    "Latency of a single upstream hop in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirect_proxy_upstream_responses_total",
			Help: "Total upstream hop responses by method and status code.",
		}, []string{"method", "status_code"}),

		RedirectHops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "redirect_proxy_redirect_hops",
			Help:    "Redirects followed per completed proxy request.",
			Buckets: hopBuckets,
		}),

		RedirectLimitExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redirect_proxy_redirect_limit_exceeded_total",
			Help: "Proxy requests aborted because the redirect limit was reached.",
		}),

		ProxyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirect_proxy_outcomes_total",
			Help: "Proxy requests by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.RedirectHops,
		m.RedirectLimitExceeded,
		m.ProxyOutcomes,
	)

	return m
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

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{"/healthz", "/proxy/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
// Every path not served by the proxy itself is a proxy request and maps to "proxy".
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return prefix
		}
	}
	return "proxy"
}
