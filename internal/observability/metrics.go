package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "timesheet_backend"

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by route, method and status code.",
	}, []string{"route", "method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	upstreamCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bitable",
		Name:      "calls_total",
		Help:      "Calls made to the Bitable API, by operation and outcome.",
	}, []string{"operation", "outcome"})

	tokenRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bitable",
		Name:      "token_refreshes_total",
		Help:      "Access token refreshes against the identity endpoint.",
	})

	loginCodes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "login",
		Name:      "codes_total",
		Help:      "Phone login codes by stage (issued, verified, rejected).",
	}, []string{"stage"})

	rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-client rate limiter, by route category.",
	}, []string{"category"})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, upstreamCalls, tokenRefreshes, loginCodes, rateLimited)
}

// RecordHTTPRequest counts a served request and observes its latency.
func RecordHTTPRequest(route, method string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordUpstreamCall counts a Bitable API call.
func RecordUpstreamCall(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamCalls.WithLabelValues(operation, outcome).Inc()
}

// RecordTokenRefresh counts an access token refresh.
func RecordTokenRefresh() {
	tokenRefreshes.Inc()
}

// RecordLoginCode counts a login code event.
func RecordLoginCode(stage string) {
	loginCodes.WithLabelValues(stage).Inc()
}

// RecordRateLimited counts a request rejected by the rate limiter.
func RecordRateLimited(category string) {
	rateLimited.WithLabelValues(category).Inc()
}
