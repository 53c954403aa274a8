// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
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
	harvesterURLsTotal            *prometheus.CounterVec
	harvesterFetchesTotal         *prometheus.CounterVec
	harvesterRobotsVerdictsTotal  *prometheus.CounterVec
	harvesterRejectionsTotal      *prometheus.CounterVec
	harvesterArtifactsTotal       *prometheus.CounterVec
	harvesterArtifactBytesTotal   *prometheus.CounterVec
	harvesterEnqueuedTotal        *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	harvesterRateLimitDelaySecond *prometheus.HistogramVec
	harvesterTransportRetries     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterURLsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_urls_total",
				Help: "URLs taken off the frontier, labeled by processing outcome.",
			},
			[]string{"outcome"},
		)

		harvesterFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetches_total",
				Help: "Fetch attempts, labeled by tier and status.",
			},
			[]string{"tier", "status"},
		)

		harvesterRobotsVerdictsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_robots_verdicts_total",
				Help: "Robots exclusion checks, labeled by verdict.",
			},
			[]string{"verdict"},
		)

		harvesterRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_rejections_total",
				Help: "Fetched content discarded before archiving, labeled by reason.",
			},
			[]string{"reason"},
		)

		harvesterArtifactsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_artifacts_total",
				Help: "Artifacts written to the archive, labeled by domain.",
			},
			[]string{"domain"},
		)

		harvesterArtifactBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_artifact_bytes_total",
				Help: "Bytes written to the archive, labeled by domain.",
			},
			[]string{"domain"},
		)

		harvesterEnqueuedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_enqueued_total",
				Help: "Frontier insertions, labeled by priority and whether the URL was new.",
			},
			[]string{"priority", "result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		harvesterRateLimitDelaySecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"key"},
		)

		harvesterTransportRetries = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_transport_retries_total",
				Help: "HTTP round trips retried after a transient TLS or timeout error.",
			},
			[]string{"site"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
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

// ObserveURL counts one processed frontier URL.
func ObserveURL(outcome string) {
	Init()
	harvesterURLsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch counts a fetch attempt on the given tier.
func ObserveFetch(tier, status string) {
	Init()
	harvesterFetchesTotal.WithLabelValues(tier, status).Inc()
}

// ObserveRobots counts a robots verdict.
func ObserveRobots(verdict string) {
	Init()
	harvesterRobotsVerdictsTotal.WithLabelValues(verdict).Inc()
}

// ObserveRejection counts content discarded by the validator or the size floor.
func ObserveRejection(reason string) {
	Init()
	harvesterRejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveArtifact records an archived artifact and its size.
func ObserveArtifact(domain string, size int64) {
	Init()
	harvesterArtifactsTotal.WithLabelValues(domain).Inc()
	if size > 0 {
		harvesterArtifactBytesTotal.WithLabelValues(domain).Add(float64(size))
	}
}

// ObserveEnqueue records a frontier insertion attempt.
func ObserveEnqueue(priority string, added bool) {
	Init()
	result := "duplicate"
	if added {
		result = "added"
	}
	harvesterEnqueuedTotal.WithLabelValues(priority, result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(key string, duration time.Duration) {
	Init()
	harvesterRateLimitDelaySecond.WithLabelValues(key).Observe(duration.Seconds())
}

// ObserveTransportRetry counts a retried round trip to site.
func ObserveTransportRetry(site string) {
	Init()
	harvesterTransportRetries.WithLabelValues(SanitizeSite(site)).Inc()
}
