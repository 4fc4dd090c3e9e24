package adapter

import (
	"context"

	"finkargo-billing/internal/domain/model"
)

type Email struct {
	To       string
	Subject  string
	HTMLBody string
	Tag      string
}

// Mailer sends transactional email.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// ReceiptSender delivers a receipt for a completed payment. Implementations may queue the work.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, p *model.Payment, s *model.Subscription) error
}
