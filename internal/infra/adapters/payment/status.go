package payment

import (
	"strings"

	"finkargo-billing/internal/domain/model"
)

// MapStatus folds provider status strings from every supported gateway into
// the internal payment status. Unrecognised values stay PROCESSING.
func MapStatus(raw string) model.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "APPROVED", "COMPLETED", "SUCCEEDED", "PAID", "COMPLETE":
		return model.PaymentStatusCompleted
	case "DECLINED", "ERROR", "FAILED", "PAYMENT_FAILED":
		return model.PaymentStatusFailed
	case "VOIDED", "EXPIRED", "CANCELED", "CANCELLED":
		return model.PaymentStatusCanceled
	default:
		return model.PaymentStatusProcessing
	}
}
