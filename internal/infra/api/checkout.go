package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/infra/logging"
	"finkargo-billing/internal/infra/metrics"
	"finkargo-billing/internal/usecase"
)

type checkoutRequest struct {
	PlanType     string `json:"plan_type"`
	BillingCycle string `json:"billing_cycle,omitempty"`
}

type checkoutResponse struct {
	PaymentID    string            `json:"payment_id"`
	Reference    string            `json:"reference"`
	CheckoutURL  string            `json:"checkout_url"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	Simulated    bool              `json:"simulated,omitempty"`
	Subscription *subscriptionView `json:"subscription,omitempty"`
}

func (s *Server) handleWompiCheckout(w http.ResponseWriter, r *http.Request) {
	s.handleCheckout(w, r, model.ProviderWompi)
}

func (s *Server) handleStripeCheckout(w http.ResponseWriter, r *http.Request) {
	s.handleCheckout(w, r, model.ProviderStripe)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request, provider model.PaymentProvider) {
	ctx := r.Context()
	log := logging.With(ctx, s.log)
	p := strings.ToLower(string(provider))

	claims, ok := SessionFrom(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<10)).Decode(&req); err != nil {
		metrics.IncCheckout(p, "invalid")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.checkoutUC.CreateCheckout(ctx, usecase.CheckoutInput{
		CompanyID:    claims.CompanyID,
		Email:        claims.Email,
		Provider:     provider,
		PlanType:     req.PlanType,
		BillingCycle: req.BillingCycle,
	})
	if err != nil {
		status := statusFor(err)
		metrics.IncCheckout(p, checkoutResult(err, status))
		if status >= 500 {
			log.Error().Err(err).Msg("checkout failed")
		} else {
			log.Info().Err(err).Msg("checkout rejected")
		}
		writeError(w, status, publicMessage(status, err))
		return
	}

	out := checkoutResponse{
		PaymentID:   res.Payment.ID,
		Reference:   res.Payment.Reference,
		CheckoutURL: res.CheckoutURL,
		Amount:      res.Payment.Amount,
		Currency:    res.Payment.Currency,
		Status:      string(res.Payment.Status),
		ExpiresAt:   res.ExpiresAt,
		Simulated:   res.Simulated,
	}
	result := "created"
	if res.Simulated {
		result = "simulated"
		out.Subscription = newSubscriptionView(res.Subscription)
		metrics.IncPayment(p, string(model.PaymentStatusCompleted))
		metrics.AddPaymentRevenue(res.Payment.Currency, res.Payment.Amount)
		if res.Subscription != nil {
			metrics.IncSubscriptionActivated(res.Subscription.Plan, false)
		}
	}
	metrics.IncCheckout(p, result)
	writeJSON(w, http.StatusOK, out)
}

func checkoutResult(err error, status int) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrDuplicatePayment):
		return "duplicate"
	case errors.Is(err, domain.ErrActiveSubscriptionExists):
		return "active_subscription"
	case status == http.StatusBadGateway:
		return "gateway_error"
	case status < 500:
		return "invalid"
	}
	return "error"
}
