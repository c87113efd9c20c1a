// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

/*
Package metrics exposes Prometheus instrumentation for the identity service.

It covers the HTTP surface (request counts, latency, in-flight gauge) and the
identity-specific flows that operations cares about: login outcomes,
registrations, and reconciliation drift repairs.

All collectors are registered against the default registry at construction and
served on /metrics.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's Prometheus collectors.
//
// An explicit struct (rather than package-level vars) keeps registration a
// one-time, injected concern and makes tests trivial with a fresh registry.
type Metrics struct {
	httpInFlight    prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	loginOutcomes   *prometheus.CounterVec
	registrations   prometheus.Counter
	reconcileRuns   *prometheus.CounterVec
	reconcileDrifts prometheus.Counter
}

// New registers all collectors on the given registerer and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "identity_http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "identity_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		loginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_login_attempts_total",
			Help: "Login attempts by outcome (success, unauthorized, rate_limited, upstream).",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "identity_registrations_total",
			Help: "Self-signup registrations created.",
		}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_reconcile_runs_total",
			Help: "Reconciliation passes by result (ok, error, skipped).",
		}, []string{"result"}),
		reconcileDrifts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "identity_reconcile_drift_repairs_total",
			Help: "Local user rows repaired from the IdP's authoritative view.",
		}),
	}

	reg.MustRegister(
		m.httpInFlight, m.httpRequests, m.httpDuration,
		m.loginOutcomes, m.registrations, m.reconcileRuns, m.reconcileDrifts,
	)

	return m
}

// Handler returns the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// # Domain Counters

// ObserveLogin records a login attempt outcome.
func (m *Metrics) ObserveLogin(outcome string) {
	m.loginOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveRegistration records a created registration.
func (m *Metrics) ObserveRegistration() {
	m.registrations.Inc()
}

// ObserveReconcileRun records the result of a reconciliation pass.
func (m *Metrics) ObserveReconcileRun(result string) {
	m.reconcileRuns.WithLabelValues(result).Inc()
}

// ObserveDriftRepair records a single repaired user row.
func (m *Metrics) ObserveDriftRepair() {
	m.reconcileDrifts.Inc()
}

// # HTTP Instrumentation

// Instrument wraps an http.Handler with RPS/latency/in-flight measurement.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		m.httpInFlight.Inc()
		start := time.Now()

		recorder := &statusWriter{ResponseWriter: writer, code: http.StatusOK}
		next.ServeHTTP(recorder, request)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(recorder.code)

		m.httpDuration.WithLabelValues(request.Method, request.URL.Path, status).Observe(duration)
		m.httpRequests.WithLabelValues(request.Method, request.URL.Path, status).Inc()
		m.httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
