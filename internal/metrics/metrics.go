// Package metrics exposes Prometheus collectors for the crawler service.
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

var (
	lookupsTotal            *prometheus.CounterVec
	messagesTotal           *prometheus.CounterVec
	queueReceiveErrorsTotal prometheus.Counter
	crawlJobsTotal          *prometheus.CounterVec
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec
	rateLimitDelaySeconds   prometheus.Histogram
	lookupCacheHitsTotal    prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		lookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cep_lookups_total",
				Help: "Total number of CEP lookups, labeled by outcome (success, not_found, fetch_error).",
			},
			[]string{"outcome"},
		)

		messagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cep_queue_messages_total",
				Help: "Total queue messages handled, labeled by result (processed, dropped, retried, dead_lettered).",
			},
			[]string{"result"},
		)

		queueReceiveErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cep_queue_receive_errors_total",
				Help: "Total errors returned by the queue receive call.",
			},
		)

		crawlJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cep_crawl_jobs_total",
				Help: "Total crawl jobs reaching a terminal status, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cep_rate_limit_delay_seconds",
				Help:    "Histogram of time operations spent queued behind the rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		lookupCacheHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cep_lookup_cache_hits_total",
				Help: "Total lookups answered from the Redis cache.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLookup increments the lookup counter for the given outcome.
func ObserveLookup(outcome string) {
	lookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveMessage increments the message counter for the given result.
func ObserveMessage(result string) {
	messagesTotal.WithLabelValues(result).Inc()
}

// ObserveReceiveError increments the queue receive error counter.
func ObserveReceiveError() {
	queueReceiveErrorsTotal.Inc()
}

// ObserveJobFinished increments the terminal job counter.
func ObserveJobFinished(status string) {
	crawlJobsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long an operation waited for its slot.
func ObserveRateLimitDelay(duration time.Duration) {
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveCacheHit increments the lookup cache hit counter.
func ObserveCacheHit() {
	lookupCacheHitsTotal.Inc()
}
