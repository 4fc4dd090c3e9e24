package model

import (
	"time"

	"finkargo-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrial    SubscriptionStatus = "TRIAL"
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

// Subscription is the company's entitlement. There is at most one per company.
type Subscription struct {
	ID                 string
	CompanyID          string
	Plan               PlanType
	Status             SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	BillingCycle       BillingCycle
	ReportsUsed        int
	ReportsLimit       int
	CanceledAt         *time.Time
	CancelAtPeriodEnd  bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewSubscription creates an ACTIVE subscription starting at now.
func NewSubscription(id, companyID string, terms PlanTerms, now time.Time) (*Subscription, error) {
	if id == "" || companyID == "" || terms.Plan == "" {
		return nil, domain.ErrInvalidArgument
	}
	s := &Subscription{
		ID:        id,
		CompanyID: companyID,
		CreatedAt: now,
	}
	if err := s.Renew(terms, now); err != nil {
		return nil, err
	}
	return s, nil
}

// Renew overwrites plan, status, period and billing cycle. The new period
// starts at now; time left on the previous period is discarded.
func (s *Subscription) Renew(terms PlanTerms, now time.Time) error {
	end := terms.PeriodEnd(now)
	if !end.After(now) {
		return domain.ErrInvalidArgument
	}
	s.Plan = terms.Plan
	s.Status = SubscriptionStatusActive
	s.CurrentPeriodStart = now
	s.CurrentPeriodEnd = end
	s.BillingCycle = terms.BillingCycle
	s.ReportsLimit = terms.ReportsLimit
	s.CanceledAt = nil
	s.CancelAtPeriodEnd = false
	s.UpdatedAt = now
	return nil
}

// Lapse moves an ACTIVE subscription whose period ended to PAST_DUE, or to
// CANCELED when it was set to cancel at period end. It reports whether s changed.
func (s *Subscription) Lapse(now time.Time) bool {
	if s.Status != SubscriptionStatusActive || now.Before(s.CurrentPeriodEnd) {
		return false
	}
	if s.CancelAtPeriodEnd {
		s.Status = SubscriptionStatusCanceled
		s.CanceledAt = &now
	} else {
		s.Status = SubscriptionStatusPastDue
	}
	s.UpdatedAt = now
	return true
}
