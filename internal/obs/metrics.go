// Package obs owns the Prometheus collectors of the service. Each process
// builds one Metrics value and passes it to the components that report.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors and the registry they are registered in.
type Metrics struct {
	reg *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	securityEvents *prometheus.CounterVec
	lockBypasses   *prometheus.CounterVec
	sinkFailures   *prometheus.CounterVec
	rateLimited    prometheus.Counter
}

// NewMetrics registers every collector on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "security_events_total",
			Help: "Security events recorded, by action and severity.",
		}, []string{"action", "severity"}),
		lockBypasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "masterdata_lock_bypass_total",
			Help: "Reference-data writes allowed through the lock by the bypass flag.",
		}, []string{"kind", "op"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "security_event_sink_failures_total",
			Help: "Security events a sink failed to accept.",
		}, []string{"sink"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_rate_limited_total",
			Help: "Auth requests rejected by the rate limiter.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.securityEvents, m.lockBypasses, m.sinkFailures, m.rateLimited,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RequestStarted marks one request in flight and returns the function that
// records its outcome.
func (m *Metrics) RequestStarted() func(method, path string, status int) {
	m.httpInFlight.Inc()
	start := time.Now()
	return func(method, path string, status int) {
		code := strconv.Itoa(status)
		m.httpRequestDuration.WithLabelValues(method, path, code).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(method, path, code).Inc()
		m.httpInFlight.Dec()
	}
}

// SecurityEvent counts one recorded event.
func (m *Metrics) SecurityEvent(action, severity string) {
	m.securityEvents.WithLabelValues(action, severity).Inc()
}

// LockBypass counts one write let through by the bypass flag.
func (m *Metrics) LockBypass(kind, op string) {
	m.lockBypasses.WithLabelValues(kind, op).Inc()
}

// SinkFailure counts one event a sink could not store.
func (m *Metrics) SinkFailure(sink string) {
	m.sinkFailures.WithLabelValues(sink).Inc()
}

// RateLimited counts one request refused by the limiter.
func (m *Metrics) RateLimited() { m.rateLimited.Inc() }
