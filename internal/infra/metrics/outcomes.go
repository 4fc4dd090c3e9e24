package metrics

import (
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/usecase"
)

// RecordWebhookOutcome updates the business counters for a processed provider
// event, whether it arrived as a webhook or from a reconciler lookup.
func RecordWebhookOutcome(res *usecase.WebhookResult) {
	if res == nil || res.Event == nil {
		return
	}
	provider := string(res.Event.Provider)
	switch res.Outcome {
	case usecase.OutcomeCompleted:
		IncPayment(provider, string(model.PaymentStatusCompleted))
		if c := res.Completion; c != nil {
			if c.Payment != nil {
				AddPaymentRevenue(c.Payment.Currency, c.Payment.Amount)
			}
			if c.Subscription != nil {
				IncSubscriptionActivated(c.Subscription.Plan, c.Renewal)
			}
		}
	case usecase.OutcomeFailed:
		IncPayment(provider, string(model.PaymentStatusFailed))
	case usecase.OutcomeCanceled:
		IncPayment(provider, string(model.PaymentStatusCanceled))
	}
}
