package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(retryRequestsTotal, retryRateLimited)
}

var (
	retryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_retry_requests_total",
			Help: "Admin retry endpoint calls by outcome.",
		},
		[]string{"outcome"}, // 'ok', 'unauthorized', 'bad_request', 'error'
	)

	retryRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admin_retry_rate_limited_total",
			Help: "Admin retry calls rejected by the rate limiter.",
		},
	)
)

func IncRetryRequest(outcome string) {
	retryRequestsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncRetryRateLimited() { retryRateLimited.Inc() }
