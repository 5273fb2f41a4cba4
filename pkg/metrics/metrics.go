// Package metrics defines the Prometheus metric collectors used across
// featurehash and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	LinesParsedTotal     *prometheus.CounterVec
	ParseErrorsTotal     *prometheus.CounterVec
	ParseLatency         *prometheus.HistogramVec
	FeaturesPerLine      prometheus.Histogram
	NamespacesPerLine    prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	EventsPublishedTotal *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses the
// global Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		LinesParsedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featurehash_lines_parsed_total",
				Help: "Example lines parsed by source and result (ok, error).",
			},
			[]string{"source", "result"},
		),
		ParseErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featurehash_parse_errors_total",
				Help: "Parse failures by error kind.",
			},
			[]string{"kind"},
		),
		ParseLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "featurehash_parse_latency_seconds",
				Help:    "Time to parse and hash one line.",
				Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.01},
			},
			[]string{"source"},
		),
		FeaturesPerLine: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "featurehash_features_per_line",
				Help:    "Number of hashed features produced per line.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
			},
		),
		NamespacesPerLine: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "featurehash_namespaces_per_line",
				Help:    "Number of namespace sections per line.",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of parse cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of parse cache misses.",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featurehash_events_published_total",
				Help: "Kafka events published by topic and status.",
			},
			[]string{"topic", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.LinesParsedTotal,
		m.ParseErrorsTotal,
		m.ParseLatency,
		m.FeaturesPerLine,
		m.NamespacesPerLine,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EventsPublishedTotal,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveParse records the outcome of one parsed line.
func (m *Metrics) ObserveParse(source string, elapsed time.Duration, numFeatures, numNamespaces int, err error) {
	m.ParseLatency.WithLabelValues(source).Observe(elapsed.Seconds())
	if err != nil {
		m.LinesParsedTotal.WithLabelValues(source, "error").Inc()
		m.ParseErrorsTotal.WithLabelValues(apperrors.Kind(err)).Inc()
		return
	}
	m.LinesParsedTotal.WithLabelValues(source, "ok").Inc()
	m.FeaturesPerLine.Observe(float64(numFeatures))
	m.NamespacesPerLine.Observe(float64(numNamespaces))
}

// Handler returns the scrape handler for g, or for the global registry when
// g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
