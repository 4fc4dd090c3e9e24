package model

import (
	"strings"
	"time"

	"finkargo-billing/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"    // checkout link/session requested
	PaymentStatusProcessing PaymentStatus = "PROCESSING" // provider reported a non-terminal state
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"  // provider approved; subscription granted
	PaymentStatusFailed     PaymentStatus = "FAILED"     // declined or errored at provider
	PaymentStatusCanceled   PaymentStatus = "CANCELED"   // voided, expired or abandoned
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// IsTerminal reports whether no further provider event may change the status.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo implements PENDING -> PROCESSING -> {COMPLETED|FAILED|CANCELED}.
// COMPLETED may only move to REFUNDED.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next != PaymentStatusPending && next != PaymentStatusRefunded
	case PaymentStatusProcessing:
		return next.IsTerminal() && next != PaymentStatusRefunded
	case PaymentStatusCompleted:
		return next == PaymentStatusRefunded
	}
	return false
}

type PaymentProvider string

const (
	ProviderWompi  PaymentProvider = "WOMPI"
	ProviderPayU   PaymentProvider = "PAYU"
	ProviderStripe PaymentProvider = "STRIPE"
)

// Payment records one checkout attempt. Reference is merchant generated and
// is the only correlation key available before the provider answers.
type Payment struct {
	ID                string
	CompanyID         string
	Reference         string
	Amount            int64 // provider minor unit (cents)
	Currency          string
	Status            PaymentStatus
	Provider          PaymentProvider
	ProviderPaymentID *string
	PaymentMethod     *string
	PlanType          PlanType
	BillingCycle      BillingCycle
	CustomerEmail     string
	Description       string
	PaidAt            *time.Time
	FailedAt          *time.Time
	FailureReason     *string
	Metadata          map[string]any // provider payloads and derived fields (JSONB)
	SubscriptionID    *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewPayment validates input and returns a PENDING payment.
func NewPayment(id, companyID, reference string, amount int64, currency string, provider PaymentProvider, plan PlanType, cycle BillingCycle, email, description string) (*Payment, error) {
	if id == "" || companyID == "" || strings.TrimSpace(reference) == "" || amount <= 0 ||
		currency == "" || provider == "" || plan == "" || strings.TrimSpace(email) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if cycle == "" {
		cycle = BillingMonthly
	}
	now := time.Now()
	return &Payment{
		ID:            id,
		CompanyID:     companyID,
		Reference:     reference,
		Amount:        amount,
		Currency:      strings.ToUpper(currency),
		Status:        PaymentStatusPending,
		Provider:      provider,
		PlanType:      plan,
		BillingCycle:  cycle,
		CustomerEmail: strings.TrimSpace(email),
		Description:   description,
		Metadata:      map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// PaymentPatch is a partial update keyed by reference. Nil fields are left
// untouched; Metadata is merged into the stored bag.
type PaymentPatch struct {
	Status            *PaymentStatus
	ProviderPaymentID *string
	PaymentMethod     *string
	FailureReason     *string
	FailedAt          *time.Time
	PaidAt            *time.Time
	Metadata          map[string]any
}

// Apply copies the patch onto p in memory.
func (pp PaymentPatch) Apply(p *Payment) {
	if pp.Status != nil {
		p.Status = *pp.Status
	}
	if pp.ProviderPaymentID != nil {
		p.ProviderPaymentID = pp.ProviderPaymentID
	}
	if pp.PaymentMethod != nil {
		p.PaymentMethod = pp.PaymentMethod
	}
	if pp.FailureReason != nil {
		p.FailureReason = pp.FailureReason
	}
	if pp.FailedAt != nil {
		p.FailedAt = pp.FailedAt
	}
	if pp.PaidAt != nil {
		p.PaidAt = pp.PaidAt
	}
	if len(pp.Metadata) > 0 {
		if p.Metadata == nil {
			p.Metadata = map[string]any{}
		}
		for k, v := range pp.Metadata {
			p.Metadata[k] = v
		}
	}
	p.UpdatedAt = time.Now()
}

// Metadata keys written by the checkout flow.
const (
	MetaCheckoutSession = "checkout_session_id"
	MetaCheckoutURL     = "checkout_url"
	MetaProviderEvent   = "last_provider_event"
)
