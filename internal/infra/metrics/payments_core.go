package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		checkoutRequestsTotal,
		receiptEmailsTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment status transitions by provider and new status.",
		},
		[]string{"provider", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value (minor units) of completed payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	// result: created|simulated|invalid|duplicate|active_subscription|rate_limited|gateway_error|error
	checkoutRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_requests_total",
			Help: "Checkout link/session creation requests by provider and result.",
		},
		[]string{"provider", "result"},
	)

	// status: sent|error
	receiptEmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_emails_total",
			Help: "Payment receipt emails by delivery status.",
		},
		[]string{"status"},
	)
)

func IncPayment(provider, status string) {
	paymentsTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncCheckout(provider, result string) {
	checkoutRequestsTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}

func IncReceiptEmail(status string) {
	receiptEmailsTotal.WithLabelValues(norm(status)).Inc()
}
