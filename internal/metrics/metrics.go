// Package metrics holds the Prometheus collectors for jobs and the
// invocation API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatched = "unmatched"

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comfybridge_jobs_total",
			Help: "Jobs finished, by outcome code (OK or the error code).",
		},
		[]string{"code"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comfybridge_job_duration_seconds",
			Help:    "End-to-end job duration in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"code"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comfybridge_stage_duration_seconds",
			Help:    "Duration of each job stage in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"stage"},
	)

	jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "comfybridge_jobs_in_flight",
		Help: "Jobs currently being processed.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comfybridge_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal, jobDuration, stageDuration, jobsInFlight, httpRequestsTotal)
}

// JobStarted bumps the in-flight gauge and returns the function that
// records the outcome.
func JobStarted() func(code string) {
	start := time.Now()
	jobsInFlight.Inc()
	return func(code string) {
		jobsInFlight.Dec()
		jobsTotal.WithLabelValues(code).Inc()
		jobDuration.WithLabelValues(code).Observe(time.Since(start).Seconds())
	}
}

// ObserveStage records how long one pipeline stage took.
func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Middleware counts requests by chi route pattern, not raw path, to keep
// label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(status)).Inc()
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
