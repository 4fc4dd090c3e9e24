// File: internal/infra/adapters/payment/stripe_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/webhook"

	"finkargo-billing/internal/config"
	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*StripeGateway)(nil)

// StripeGateway creates Checkout Sessions in payment mode and verifies
// Stripe-Signature headers with the SDK.
type StripeGateway struct {
	webhookSecret string
	successURL    string
	cancelURL     string
}

// NewStripeGateway sets the global Stripe API key.
func NewStripeGateway(cfg config.StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" || cfg.WebhookSecret == "" {
		return nil, errors.New("stripe secret key and webhook secret are required")
	}
	stripe.Key = cfg.SecretKey
	return &StripeGateway{
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}, nil
}

func (g *StripeGateway) Name() model.PaymentProvider { return model.ProviderStripe }

func (g *StripeGateway) CreateCheckout(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	if req.Reference == "" || req.AmountInCents <= 0 || req.Currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	success, cancel := req.RedirectURL, req.CancelURL
	if success == "" {
		success = g.successURL
	}
	if cancel == "" {
		cancel = g.cancelURL
	}
	name := req.Description
	if name == "" {
		name = "Plan " + string(req.PlanType)
	}

	meta := map[string]string{
		"reference":     req.Reference,
		"plan_type":     string(req.PlanType),
		"billing_cycle": string(req.BillingCycle),
	}
	for k, v := range req.Metadata {
		meta[k] = v
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.Reference),
		SuccessURL:        stripe.String(success),
		CancelURL:         stripe.String(cancel),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.AmountInCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: meta},
		Metadata:          meta,
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(req.Reference)

	s, err := session.New(params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	out := &adapter.CheckoutSession{URL: s.URL, ProviderID: s.ID}
	if s.ExpiresAt > 0 {
		exp := time.Unix(s.ExpiresAt, 0)
		out.ExpiresAt = &exp
	}
	return out, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature, _ string) (*adapter.PaymentEvent, error) {
	if signature == "" {
		return nil, domain.ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned), errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature), errors.Is(err, webhook.ErrTooOld):
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	return translateEvent(event, payload)
}

func translateEvent(event stripe.Event, payload []byte) (*adapter.PaymentEvent, error) {
	out := &adapter.PaymentEvent{
		Provider:   model.ProviderStripe,
		EventID:    event.ID,
		Type:       string(event.Type),
		OccurredAt: time.Unix(event.Created, 0),
		Payload:    json.RawMessage(payload),
	}
	if event.Data == nil {
		out.Ignored = true
		return out, nil
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
		}
		fillFromSession(out, &s)
		switch event.Type {
		case "checkout.session.async_payment_succeeded":
			out.Status = model.PaymentStatusCompleted
		case "checkout.session.async_payment_failed":
			out.Status = model.PaymentStatusFailed
			out.FailureReason = "async payment failed"
		}
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
		}
		out.Reference = pi.Metadata["reference"]
		out.ProviderPaymentID = pi.ID
		out.RawStatus = string(pi.Status)
		out.AmountInCents = pi.Amount
		out.Currency = strings.ToUpper(string(pi.Currency))
		if event.Type == "payment_intent.succeeded" {
			out.Status = model.PaymentStatusCompleted
		} else {
			out.Status = model.PaymentStatusFailed
			out.FailureReason = "payment_failed"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
				out.FailureReason = pi.LastPaymentError.Msg
			}
		}
	default:
		out.Ignored = true
		return out, nil
	}
	if out.Reference == "" {
		out.Ignored = true
	}
	return out, nil
}

func fillFromSession(out *adapter.PaymentEvent, s *stripe.CheckoutSession) {
	out.Reference = s.ClientReferenceID
	if out.Reference == "" {
		out.Reference = s.Metadata["reference"]
	}
	out.ProviderPaymentID = s.ID
	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		out.ProviderPaymentID = s.PaymentIntent.ID
	}
	out.RawStatus = string(s.Status) + "/" + string(s.PaymentStatus)
	out.AmountInCents = s.AmountTotal
	out.Currency = strings.ToUpper(string(s.Currency))
	if len(s.PaymentMethodTypes) > 0 {
		out.PaymentMethod = s.PaymentMethodTypes[0]
	}
	switch {
	case s.Status == stripe.CheckoutSessionStatusExpired:
		out.Status = model.PaymentStatusCanceled
		out.FailureReason = "checkout session expired"
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		out.Status = model.PaymentStatusCompleted
	default:
		out.Status = model.PaymentStatusProcessing
	}
}

// LookupPayment retrieves the checkout session created for p.
func (g *StripeGateway) LookupPayment(ctx context.Context, p *model.Payment) (*adapter.PaymentEvent, error) {
	id, _ := p.Metadata[model.MetaCheckoutSession].(string)
	if id == "" && p.ProviderPaymentID != nil && strings.HasPrefix(*p.ProviderPaymentID, "cs_") {
		id = *p.ProviderPaymentID
	}
	if id == "" {
		return nil, nil
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := session.Get(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing {
			return nil, nil
		}
		return nil, wrapStripeError(err)
	}
	return sessionLookupEvent(s, p.Reference, time.Now()), nil
}

// sessionLookupEvent keys the event on both session and payment status: an async
// method leaves the session "complete" while it moves from unpaid to paid.
func sessionLookupEvent(s *stripe.CheckoutSession, reference string, at time.Time) *adapter.PaymentEvent {
	out := &adapter.PaymentEvent{
		Provider:   model.ProviderStripe,
		EventID:    s.ID + ":" + string(s.Status) + ":" + string(s.PaymentStatus),
		Type:       "checkout.session.lookup",
		OccurredAt: at,
	}
	fillFromSession(out, s)
	if out.Reference == "" {
		out.Reference = reference
	}
	return out
}

func wrapStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode >= 500 || se.HTTPStatusCode == 0 {
			return fmt.Errorf("%w: stripe %s", domain.ErrGatewayUnavailable, se.Msg)
		}
		return fmt.Errorf("%w: stripe %s", domain.ErrGatewayRejected, se.Msg)
	}
	return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
}
