package adapter

import (
	"context"
	"encoding/json"
	"time"

	"finkargo-billing/internal/domain/model"
)

// CheckoutRequest is a provider-agnostic request for a hosted checkout.
type CheckoutRequest struct {
	Reference     string // unique per attempt
	AmountInCents int64  // must be positive
	Currency      string
	CustomerEmail string
	PlanType      model.PlanType
	BillingCycle  model.BillingCycle
	Description   string
	RedirectURL   string // success / return URL
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSession is what the provider handed back for a checkout request.
type CheckoutSession struct {
	URL        string
	ProviderID string // session or link id; empty when the provider assigns none up front
	Signature  string // integrity signature embedded in the URL, if any
	ExpiresAt  *time.Time
}

// PaymentEvent is a verified provider notification normalized to internal terms.
type PaymentEvent struct {
	Provider          model.PaymentProvider
	EventID           string
	Type              string
	Reference         string
	ProviderPaymentID string
	Status            model.PaymentStatus // mapped from RawStatus
	RawStatus         string
	FailureReason     string
	PaymentMethod     string
	AmountInCents     int64
	Currency          string
	Ignored           bool // event type is not a transaction/session update
	OccurredAt        time.Time
	Payload           json.RawMessage
}

// PaymentGateway is the hex port for payment providers.
type PaymentGateway interface {
	Name() model.PaymentProvider

	// CreateCheckout returns a provider-hosted checkout URL for req.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// ParseWebhook verifies the signature over the raw payload before decoding it.
	// It returns domain.ErrInvalidSignature when verification fails.
	ParseWebhook(payload []byte, signature, timestamp string) (*PaymentEvent, error)

	// LookupPayment asks the provider for the current state of a payment. It returns
	// (nil, nil) when the provider has no record yet.
	LookupPayment(ctx context.Context, p *model.Payment) (*PaymentEvent, error)
}
