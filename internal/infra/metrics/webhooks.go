package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		WebhookRequests,
		WebhookDuration,
	)
}

var (
	// Count of webhook deliveries grouped by provider and bounded result.
	// result: processed|ignored|duplicate|unknown_reference|invalid_signature|bad_request|internal_error
	WebhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Count of provider webhook deliveries by provider and result.",
		},
		[]string{"provider", "result"},
	)

	// Latency of webhook handlers grouped by provider.
	WebhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_duration_seconds",
			Help:    "Duration of webhook handlers in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"provider"},
	)
)

func ObserveWebhook(provider, result string, started time.Time) {
	WebhookRequests.WithLabelValues(norm(provider), norm(result)).Inc()
	WebhookDuration.WithLabelValues(norm(provider)).Observe(time.Since(started).Seconds())
}
