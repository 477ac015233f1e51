// Package metrics exposes Prometheus collectors for the indexer.
package metrics

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal         *prometheus.CounterVec
	apiRetriesTotal          *prometheus.CounterVec
	apiRateLimitDelaySeconds *prometheus.HistogramVec
	urlChecksTotal           *prometheus.CounterVec
	cacheHitsTotal           prometheus.Counter
	batchesTotal             prometheus.Counter
	submissionsTotal         *prometheus.CounterVec
	quotaWaitSeconds         prometheus.Histogram
	lastRunTimestamp         prometheus.Gauge
	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gsc_api_requests_total",
				Help: "Total number of console API attempts, labeled by host and status code.",
			},
			[]string{"host", "code"},
		)

		apiRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gsc_api_retries_total",
				Help: "Total number of immediate resubmissions after a server or transport failure.",
			},
			[]string{"host"},
		)

		apiRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gsc_api_rate_limit_delay_seconds",
				Help:    "Histogram of client-side rate limiter waits.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		urlChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gsc_url_checks_total",
				Help: "Total number of URL inspections, labeled by resulting status.",
			},
			[]string{"status"},
		)

		cacheHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gsc_cache_hits_total",
				Help: "URLs whose cached status was trusted without a remote check.",
			},
		)

		batchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gsc_batches_total",
				Help: "Number of inspection batches completed.",
			},
		)

		submissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gsc_submissions_total",
				Help: "Indexing submissions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		quotaWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gsc_quota_wait_seconds",
				Help:    "Histogram of waits spent on the metadata quota ladder.",
				Buckets: []float64{1, 10, 30, 60, 120, 300},
			},
		)

		lastRunTimestamp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gsc_last_run_timestamp_seconds",
				Help: "Unix time at which the last run finished.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gsc_http_requests_total",
				Help: "Requests served by the status server, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gsc_http_request_duration_seconds",
				Help:    "Histogram of status server latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	Init()
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// ObserveAPIRequest counts one attempt against a console API host. A zero code means transport failure.
func ObserveAPIRequest(host string, code int) {
	Init()
	apiRequestsTotal.WithLabelValues(host, strconv.Itoa(code)).Inc()
}

// ObserveAPIRetry counts one resubmission.
func ObserveAPIRetry(host string) {
	Init()
	apiRetriesTotal.WithLabelValues(host).Inc()
}

// ObserveRateLimitDelay records the duration of a client-side rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	apiRateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveURLCheck counts an inspection result.
func ObserveURLCheck(status string) {
	Init()
	urlChecksTotal.WithLabelValues(status).Inc()
}

// ObserveCacheHit counts a URL served from cache.
func ObserveCacheHit() {
	Init()
	cacheHitsTotal.Inc()
}

// ObserveBatch counts a completed batch.
func ObserveBatch() {
	Init()
	batchesTotal.Inc()
}

// ObserveSubmission counts a submission outcome.
func ObserveSubmission(outcome string) {
	Init()
	submissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveQuotaWait records one wait on the quota ladder.
func ObserveQuotaWait(duration time.Duration) {
	Init()
	quotaWaitSeconds.Observe(duration.Seconds())
}

// MarkRunFinished stamps the last run gauge.
func MarkRunFinished(at time.Time) {
	Init()
	lastRunTimestamp.Set(float64(at.Unix()))
}

// ObserveHTTPRequest records one request served by the status server.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
