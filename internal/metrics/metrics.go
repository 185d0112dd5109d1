// Package metrics holds the Prometheus collectors the API exports on
// /metrics. Collectors live on an explicit registry instead of the global
// default so tests can build as many as they like.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry and the API's collectors.
//
// A nil *Metrics is valid: every recording method checks for it, so code
// paths and tests that do not care about metrics can pass nil.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	emailsSent      *prometheus.CounterVec
	uploads         *prometheus.CounterVec
}

// New registers every collector, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smilecook_cache_lookups_total",
				Help: "Published recipe listing cache lookups by result (hit, miss, error)",
			},
			[]string{"result"},
		),
		emailsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smilecook_emails_total",
				Help: "Activation emails by outcome (sent, failed)",
			},
			[]string{"outcome"},
		),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smilecook_image_uploads_total",
				Help: "Processed image uploads by folder",
			},
			[]string{"folder"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration,
		m.requestTotal,
		m.cacheLookups,
		m.emailsSent,
		m.uploads,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordRequest observes one HTTP request. route should be the chi route
// pattern (e.g. "/recipes/{id}") so ids do not blow up label cardinality.
func (m *Metrics) RecordRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, route, code).Observe(seconds)
	m.requestTotal.WithLabelValues(method, route, code).Inc()
}

// The methods below are nil-safe so services can run without metrics.

// CacheHit, CacheMiss and CacheError count listing cache lookups by outcome.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheLookups.WithLabelValues("hit").Inc()
	}
}

// CacheMiss counts a lookup that went to the store.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// CacheError counts a lookup the cache backend failed to answer.
func (m *Metrics) CacheError() {
	if m != nil {
		m.cacheLookups.WithLabelValues("error").Inc()
	}
}

// EmailSent counts activation emails by outcome.
func (m *Metrics) EmailSent(ok bool) {
	if m == nil {
		return
	}
	outcome := "sent"
	if !ok {
		outcome = "failed"
	}
	m.emailsSent.WithLabelValues(outcome).Inc()
}

// ImageUploaded counts stored uploads per folder.
func (m *Metrics) ImageUploaded(folder string) {
	if m != nil {
		m.uploads.WithLabelValues(folder).Inc()
	}
}
