// Package observability exposes Prometheus metrics for the security
// pipeline and the control API.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	decisionsTotal   *prometheus.CounterVec
	stageFailures    *prometheus.CounterVec
	cacheHitsTotal   prometheus.Counter
	pipelineDuration prometheus.Histogram
}

// NewMetrics initializes the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aegis_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_security_decisions_total",
		Help: "Security pipeline decisions by request type and outcome.",
	}, []string{"type", "outcome"})
	stageFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_pipeline_stage_failures_total",
		Help: "Pipeline stage failures by stage.",
	}, []string{"stage"})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_response_cache_hits_total",
		Help: "Coordinator response cache hits.",
	})
	pipeline := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aegis_pipeline_duration_seconds",
		Help:    "End-to-end security pipeline duration.",
		Buckets: prometheus.DefBuckets,
	})
	registry.MustRegister(requests, duration, decisions, stageFailures, cacheHits, pipeline)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		decisionsTotal:   decisions,
		stageFailures:    stageFailures,
		cacheHitsTotal:   cacheHits,
		pipelineDuration: pipeline,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveDecision records one coordinator decision.
func (m *Metrics) ObserveDecision(requestType, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(requestType, outcome).Inc()
	m.pipelineDuration.Observe(latency.Seconds())
}

// ObserveStageFailure records a failure in a named pipeline stage.
func (m *Metrics) ObserveStageFailure(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

// ObserveCacheHit records a coordinator response cache hit.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

// Middleware records metrics for each HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// DecisionCounter returns the decision counter for one label pair.
func (m *Metrics) DecisionCounter(requestType, outcome string) prometheus.Counter {
	return m.decisionsTotal.WithLabelValues(requestType, outcome)
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
