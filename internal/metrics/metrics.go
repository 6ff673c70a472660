// Package metrics exposes Prometheus collectors for the dashboard client.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll fetch outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeDiscarded = "discarded"
	OutcomeFailed    = "failed"
)

var (
	apiRequestsTotal          *prometheus.CounterVec
	apiRequestDurationSeconds *prometheus.HistogramVec
	pollFetchesTotal          *prometheus.CounterVec
	pollActive                prometheus.Gauge
	actionsTotal              *prometheus.CounterVec
	rateLimitWaitSeconds      prometheus.Histogram
	sessionInvalidationsTotal prometheus.Counter
	controlRequestsTotal      *prometheus.CounterVec
	controlRequestSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawldash_api_requests_total",
				Help: "Backend API requests, labeled by endpoint and response code.",
			},
			[]string{"endpoint", "code"},
		)

		apiRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawldash_api_request_duration_seconds",
				Help:    "Histogram of backend API latencies, labeled by endpoint.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"endpoint"},
		)

		pollFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawldash_poll_fetches_total",
				Help: "Job list fetches, labeled by outcome (applied, discarded, failed).",
			},
			[]string{"outcome"},
		)

		pollActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawldash_poll_active",
				Help: "1 while the polling loop is running for an authenticated session.",
			},
		)

		actionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawldash_actions_total",
				Help: "User-triggered mutations, labeled by action and result.",
			},
			[]string{"action", "result"},
		)

		rateLimitWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawldash_rate_limit_wait_seconds",
				Help:    "Histogram of client-side rate limit waits.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		sessionInvalidationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawldash_session_invalidations_total",
				Help: "Sessions ended by logout or by a 401 from the backend.",
			},
		)

		controlRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawldash_control_requests_total",
				Help: "Local control server requests, labeled by method, route, and status code.",
			},
			[]string{"method", "route", "code"},
		)

		controlRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawldash_control_request_duration_seconds",
				Help:    "Histogram of local control server latencies, labeled by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAPIRequest records one backend round trip. A code of 0 means the
// request failed before a response arrived.
func ObserveAPIRequest(endpoint string, code int, duration time.Duration) {
	Init()
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	apiRequestsTotal.WithLabelValues(endpoint, label).Inc()
	apiRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObservePollFetch counts one list fetch by outcome.
func ObservePollFetch(outcome string) {
	Init()
	pollFetchesTotal.WithLabelValues(outcome).Inc()
}

// SetPollActive flips the polling gauge.
func SetPollActive(active bool) {
	Init()
	if active {
		pollActive.Set(1)
		return
	}
	pollActive.Set(0)
}

// ObserveAction counts one mutation.
func ObserveAction(action string, err error) {
	Init()
	result := "success"
	if err != nil {
		result = "failure"
	}
	actionsTotal.WithLabelValues(action, result).Inc()
}

// ObserveRateLimitWait records how long a request waited for a token.
func ObserveRateLimitWait(duration time.Duration) {
	Init()
	rateLimitWaitSeconds.Observe(duration.Seconds())
}

// ObserveSessionInvalidation counts one session end.
func ObserveSessionInvalidation() {
	Init()
	sessionInvalidationsTotal.Inc()
}

// ObserveControlRequest records one request served by the local control server.
func ObserveControlRequest(method, route string, code int, duration time.Duration) {
	Init()
	controlRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	controlRequestSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
