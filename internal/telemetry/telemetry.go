// Package telemetry exposes Prometheus collectors for the dashboard service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 300},
		},
		[]string{"method", "route"},
	)

	relayStreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_relay_streams_total",
			Help: "Total number of relayed generation streams, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	relayBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_relay_bytes_total",
			Help: "Total bytes forwarded from the generation agent to clients.",
		},
	)

	relayDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashboard_relay_duration_seconds",
			Help:    "Histogram of relay lifetimes from upstream open to sink close.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	docsPersistTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_docs_persist_total",
			Help: "Total persistence attempts for generated docs, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

// ObserveHTTPRequest records a completed HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRelay records one finished relay lifetime.
func ObserveRelay(outcome string, bytes int64, duration time.Duration) {
	relayStreamsTotal.WithLabelValues(outcome).Inc()
	relayBytesTotal.Add(float64(bytes))
	relayDurationSeconds.Observe(duration.Seconds())
}

// ObservePersist records one Persistence Gateway call.
func ObservePersist(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	docsPersistTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses flowing through the metrics wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
