package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts requests by route, method, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration observes request latency by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 300},
		},
		[]string{"route", "method"},
	)

	// TemplateRequestsTotal counts upstream fan-out branches by template and outcome.
	TemplateRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cqs_template_requests_total",
			Help: "Total number of canned-template upstream requests by outcome",
		},
		[]string{"template", "outcome"},
	)
	// TemplateRequestDuration observes upstream call latency per template.
	TemplateRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cqs_template_request_duration_seconds",
			Help:    "Upstream workflow-runner request duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 60, 120, 300, 600, 900},
		},
		[]string{"template"},
	)

	// JobsProcessedTotal counts background jobs by terminal status.
	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cqs_jobs_processed_total",
			Help: "Total number of async jobs processed by terminal status",
		},
		[]string{"status"},
	)
	// JobsReapedTotal counts stale jobs deleted by the reaper.
	JobsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cqs_jobs_reaped_total",
			Help: "Total number of stale jobs deleted",
		},
	)
	// CallbackDeliveriesTotal counts callback POSTs by outcome.
	CallbackDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cqs_callback_deliveries_total",
			Help: "Total number of async callback deliveries by outcome",
		},
		[]string{"outcome"},
	)
)

var initOnce sync.Once

// InitMetrics registers all metric vectors with the default registry.
// Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			TemplateRequestsTotal,
			TemplateRequestDuration,
			JobsProcessedTotal,
			JobsReapedTotal,
			CallbackDeliveriesTotal,
		)
	})
}

// HTTPMetricsMiddleware records request counters and latency keyed by the
// chi route pattern so path parameters do not explode label cardinality.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
