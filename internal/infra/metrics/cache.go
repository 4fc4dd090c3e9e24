package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dedupeRequestsTotal) }

var dedupeRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_dedupe_requests_total",
		Help: "Redis webhook dedupe claims by result.",
	},
	[]string{"result"}, // claimed|duplicate|error
)

func IncDedupe(result string) {
	dedupeRequestsTotal.WithLabelValues(norm(result)).Inc()
}
