// Package telemetry exposes the Prometheus metrics recorded by the ask
// pipeline and the HTTP server.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	asksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_asks_total",
			Help: "Total number of questions answered, by outcome.",
		},
		[]string{"outcome"},
	)
	validationRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_validation_rejections_total",
			Help: "Total number of generated or submitted statements rejected by the SQL validator.",
		},
	)
	stageDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_stage_duration_ms",
			Help:    "Time spent in each pipeline stage in milliseconds.",
			Buckets: []float64{1, 5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"stage"},
	)
	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_tokens_total",
			Help: "Total number of model tokens consumed, by direction.",
		},
		[]string{"direction"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// OutcomeSuccess labels asks that returned a result.
const OutcomeSuccess = "success"

func init() {
	prometheus.MustRegister(
		asksTotal,
		validationRejectionsTotal,
		stageDurationMs,
		tokensTotal,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler { return promhttp.Handler() }

func ObserveAsk(outcome string) {
	asksTotal.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	stageDurationMs.WithLabelValues(stage).Observe(float64(elapsed.Milliseconds()))
}

func ObserveTokens(input, output int) {
	if input > 0 {
		tokensTotal.WithLabelValues("input").Add(float64(input))
	}
	if output > 0 {
		tokensTotal.WithLabelValues("output").Add(float64(output))
	}
}

func IncrementValidationRejection() {
	validationRejectionsTotal.Inc()
}

// ObserveHTTPRequest records one served request. route should be the
// matched route pattern, not the raw path, to keep cardinality bounded.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
