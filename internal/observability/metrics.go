package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	JournalsPosted       prometheus.Counter
	JournalsVoided       prometheus.Counter
	AllocationsApplied   prometheus.Counter
	ReconciliationsDone  prometheus.Counter
	BalanceDriftDetected prometheus.Gauge
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	journalsPosted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_journals_posted_total",
		Help: "Journal entries posted.",
	})
	journalsVoided := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_journals_voided_total",
		Help: "Journal entries voided via reversal.",
	})
	allocations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_allocations_total",
		Help: "Payment allocations applied.",
	})
	reconciliations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_reconciliations_completed_total",
		Help: "Bank reconciliations completed.",
	})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meridian_gl_balance_drift_rows",
		Help: "Account balance rows that disagree with summed posted lines.",
	})
	registry.MustRegister(requests, duration, journalsPosted, journalsVoided, allocations, reconciliations, drift)
	return &Metrics{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:        requests,
		requestDuration:      duration,
		JournalsPosted:       journalsPosted,
		JournalsVoided:       journalsVoided,
		AllocationsApplied:   allocations,
		ReconciliationsDone:  reconciliations,
		BalanceDriftDetected: drift,
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

// Middleware records metrics for every HTTP request.
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
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
