package metrics

import (
	"finkargo-billing/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsActivatedTotal,
		subscriptionsExpiredTotal,
		subscriptionsTotal,
	)
}

var (
	// kind: new|renewal
	subscriptionsActivatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_activated_total",
			Help: "Subscriptions activated by a completed payment, by plan and kind.",
		},
		[]string{"plan", "kind"},
	)

	subscriptionsExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Subscriptions lapsed by the expiry worker, by resulting status.",
		},
		[]string{"status"},
	)

	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by status.",
		},
		[]string{"status"},
	)
)

func IncSubscriptionActivated(plan model.PlanType, renewal bool) {
	kind := "new"
	if renewal {
		kind = "renewal"
	}
	subscriptionsActivatedTotal.WithLabelValues(norm(string(plan)), kind).Inc()
}

func IncSubscriptionsExpired(status model.SubscriptionStatus, count int) {
	subscriptionsExpiredTotal.WithLabelValues(norm(string(status))).Add(float64(count))
}

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	statuses := []model.SubscriptionStatus{
		model.SubscriptionStatusTrial,
		model.SubscriptionStatusActive,
		model.SubscriptionStatusPastDue,
		model.SubscriptionStatusCanceled,
	}
	for _, status := range statuses {
		subscriptionsTotal.WithLabelValues(norm(string(status))).Set(float64(counts[status]))
	}
}
