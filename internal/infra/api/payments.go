package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/infra/logging"
)

type subscriptionView struct {
	ID                 string    `json:"id"`
	Plan               string    `json:"plan"`
	Status             string    `json:"status"`
	BillingCycle       string    `json:"billing_cycle"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool      `json:"cancel_at_period_end"`
}

func newSubscriptionView(s *model.Subscription) *subscriptionView {
	if s == nil {
		return nil
	}
	return &subscriptionView{
		ID:                 s.ID,
		Plan:               string(s.Plan),
		Status:             string(s.Status),
		BillingCycle:       string(s.BillingCycle),
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
}

type paymentView struct {
	ID                string            `json:"id"`
	Reference         string            `json:"reference"`
	Status            string            `json:"status"`
	Provider          string            `json:"provider"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	PlanType          string            `json:"plan_type"`
	BillingCycle      string            `json:"billing_cycle"`
	ProviderPaymentID *string           `json:"provider_payment_id,omitempty"`
	PaymentMethod     *string           `json:"payment_method,omitempty"`
	FailureReason     *string           `json:"failure_reason,omitempty"`
	PaidAt            *time.Time        `json:"paid_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	Company           map[string]string `json:"company"`
	Subscription      *subscriptionView `json:"subscription,omitempty"`
}

// handleGetPayment accepts either the payment id or its reference.
func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.With(ctx, s.log)
	claims, _ := SessionFrom(ctx)
	key := strings.TrimSpace(chi.URLParam(r, "id"))

	reference := key
	if p, err := s.paymentUC.GetPayment(ctx, key); err == nil {
		reference = p.Reference
	} else if !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Msg("payment lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	d, err := s.paymentUC.GetPaymentByReference(ctx, reference)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			log.Error().Err(err).Msg("payment lookup failed")
		}
		writeError(w, status, publicMessage(status, errors.New("payment not found")))
		return
	}
	// other companies' payments are reported as missing
	if claims == nil || d.Payment.CompanyID != claims.CompanyID {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}

	p := d.Payment
	out := paymentView{
		ID:                p.ID,
		Reference:         p.Reference,
		Status:            string(p.Status),
		Provider:          string(p.Provider),
		Amount:            p.Amount,
		Currency:          p.Currency,
		PlanType:          string(p.PlanType),
		BillingCycle:      string(p.BillingCycle),
		ProviderPaymentID: p.ProviderPaymentID,
		PaymentMethod:     p.PaymentMethod,
		FailureReason:     p.FailureReason,
		PaidAt:            p.PaidAt,
		CreatedAt:         p.CreatedAt,
		Company:           map[string]string{"id": d.Company.ID, "name": d.Company.Name},
		Subscription:      newSubscriptionView(d.Subscription),
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, _ := SessionFrom(ctx)
	sub, err := s.subUC.GetByCompany(ctx, claims.CompanyID)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			l := logging.With(ctx, s.log)
			l.Error().Err(err).Msg("subscription lookup failed")
		}
		writeError(w, status, publicMessage(status, errors.New("no subscription")))
		return
	}
	writeJSON(w, http.StatusOK, newSubscriptionView(sub))
}
