// File: internal/usecase/checkout_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
	"finkargo-billing/internal/domain/ports/repository"
	"finkargo-billing/internal/infra/logging"
)

var _ CheckoutUseCase = (*checkoutUC)(nil)

// ReferencePrefix starts every merchant reference.
const ReferencePrefix = "FINKARGO_"

type CheckoutUseCase interface {
	// CreateCheckout validates the request, stores a PENDING payment and asks the
	// provider for a hosted checkout URL.
	CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error)
}

type CheckoutInput struct {
	CompanyID    string
	Email        string
	Provider     model.PaymentProvider
	PlanType     string
	BillingCycle string // optional; "yearly" turns a tier plan into an annual purchase
}

type CheckoutResult struct {
	Payment     *model.Payment
	CheckoutURL string
	ExpiresAt   *time.Time
	// Simulated is set when the payment was completed locally without a provider.
	Simulated    bool
	Subscription *model.Subscription
}

// CheckoutProvider is the per-provider part of the checkout configuration.
type CheckoutProvider struct {
	Gateway     adapter.PaymentGateway
	Prices      model.PriceTable
	Currency    string
	RedirectURL string
	CancelURL   string
}

type CheckoutPolicy struct {
	DuplicateWindow time.Duration
	RenewalWindow   time.Duration
	RateLimit       int // per company per minute; 0 disables
}

// simulatedGateway is implemented by gateways that never reach a real provider.
type simulatedGateway interface {
	Simulated() bool
	ProviderPaymentID(reference string) string
}

type checkoutUC struct {
	providers map[model.PaymentProvider]CheckoutProvider
	payments  repository.PaymentRepository
	subs      repository.SubscriptionRepository
	paymentUC PaymentUseCase
	limiter   adapter.RateLimiter
	policy    CheckoutPolicy

	log          *zerolog.Logger
	now          func() time.Time
	newReference func() string
}

func NewCheckoutUseCase(
	providers map[model.PaymentProvider]CheckoutProvider,
	payments repository.PaymentRepository,
	subs repository.SubscriptionRepository,
	paymentUC PaymentUseCase,
	limiter adapter.RateLimiter,
	policy CheckoutPolicy,
	logger *zerolog.Logger,
) *checkoutUC {
	return &checkoutUC{
		providers:    providers,
		payments:     payments,
		subs:         subs,
		paymentUC:    paymentUC,
		limiter:      limiter,
		policy:       policy,
		log:          logger,
		now:          time.Now,
		newReference: NewReference,
	}
}

// NewReference returns a unique, time-sortable merchant reference.
func NewReference() string {
	return ReferencePrefix + ulid.Make().String()
}

func (u *checkoutUC) CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	ctx = logging.WithCompanyID(logging.WithProvider(ctx, string(in.Provider)), in.CompanyID)
	log := logging.With(ctx, u.log)

	prov, ok := u.providers[in.Provider]
	if !ok || prov.Gateway == nil {
		return nil, fmt.Errorf("%w: provider %s is not configured", domain.ErrInvalidArgument, in.Provider)
	}
	if in.CompanyID == "" {
		return nil, domain.ErrCompanyNotFound
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: customer email is required", domain.ErrInvalidArgument)
	}
	plan, err := model.ParsePlanType(in.PlanType)
	if err != nil {
		return nil, err
	}
	cycle := model.BillingMonthly
	if strings.EqualFold(in.BillingCycle, "yearly") || plan == model.PlanAnual {
		cycle = model.BillingYearly
	}
	amount, err := prov.Prices.Price(plan, cycle)
	if err != nil {
		return nil, err
	}

	if u.limiter != nil && u.policy.RateLimit > 0 {
		allowed, err := u.limiter.Allow(ctx, "rate_limit:checkout:"+in.CompanyID, u.policy.RateLimit, time.Minute)
		if err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable; allowing checkout")
		} else if !allowed {
			return nil, domain.ErrRateLimited
		}
	}

	now := u.now()
	if err := u.checkActiveSubscription(ctx, in.CompanyID, plan, now); err != nil {
		return nil, err
	}
	if u.policy.DuplicateWindow > 0 {
		recent, err := u.payments.FindRecentOpen(ctx, repository.NoTX, in.CompanyID, plan, in.Provider, now.Add(-u.policy.DuplicateWindow))
		switch {
		case err == nil && recent != nil:
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicatePayment, recent.Reference)
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	reference := u.newReference()
	ctx = logging.WithReference(ctx, reference)
	log = logging.With(ctx, u.log)

	p, err := u.paymentUC.CreatePayment(ctx, NewPaymentInput{
		CompanyID:     in.CompanyID,
		Reference:     reference,
		Amount:        amount,
		Currency:      prov.Currency,
		Provider:      in.Provider,
		PlanType:      plan,
		BillingCycle:  cycle,
		CustomerEmail: email,
		Description:   fmt.Sprintf("Suscripción Finkargo - Plan %s", plan),
	})
	if err != nil {
		return nil, err
	}

	session, err := prov.Gateway.CreateCheckout(ctx, adapter.CheckoutRequest{
		Reference:     reference,
		AmountInCents: amount,
		Currency:      prov.Currency,
		CustomerEmail: email,
		PlanType:      plan,
		BillingCycle:  cycle,
		Description:   p.Description,
		RedirectURL:   prov.RedirectURL,
		CancelURL:     prov.CancelURL,
		Metadata:      map[string]string{"company_id": in.CompanyID},
	})
	if err != nil {
		log.Error().Err(err).Msg("gateway checkout failed")
		failed := model.PaymentStatusFailed
		reason := "checkout: " + err.Error()
		failedAt := u.now()
		if _, uerr := u.payments.UpdateByReference(ctx, repository.NoTX, reference, model.PaymentPatch{
			Status: &failed, FailureReason: &reason, FailedAt: &failedAt,
		}); uerr != nil {
			log.Error().Err(uerr).Msg("could not mark payment failed")
		}
		if !errors.Is(err, domain.ErrGatewayUnavailable) && !errors.Is(err, domain.ErrGatewayRejected) {
			err = fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		}
		return nil, err
	}

	meta := map[string]any{model.MetaCheckoutURL: session.URL}
	if session.ProviderID != "" {
		meta[model.MetaCheckoutSession] = session.ProviderID
	}
	if p, err = u.payments.UpdateByReference(ctx, repository.NoTX, reference, model.PaymentPatch{Metadata: meta}); err != nil {
		return nil, err
	}

	res := &CheckoutResult{Payment: p, CheckoutURL: session.URL, ExpiresAt: session.ExpiresAt}
	if sim, ok := prov.Gateway.(simulatedGateway); ok && sim.Simulated() {
		done, err := u.paymentUC.CompletePayment(ctx, reference, sim.ProviderPaymentID(reference))
		if err != nil {
			return nil, err
		}
		res.Payment = done.Payment
		res.Subscription = done.Subscription
		res.Simulated = true
		log.Warn().Msg("simulation mode: payment completed without a provider")
	}
	log.Info().Int64("amount", amount).Str("plan", string(plan)).Msg("checkout created")
	return res, nil
}

// checkActiveSubscription refuses a purchase of the plan the company already
// holds unless the period is about to end.
func (u *checkoutUC) checkActiveSubscription(ctx context.Context, companyID string, plan model.PlanType, now time.Time) error {
	sub, err := u.subs.FindByCompany(ctx, repository.NoTX, companyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if sub.Status == model.SubscriptionStatusActive && sub.Plan == plan &&
		sub.CurrentPeriodEnd.After(now.Add(u.policy.RenewalWindow)) {
		return fmt.Errorf("%w: active until %s", domain.ErrActiveSubscriptionExists, sub.CurrentPeriodEnd.Format("2006-01-02"))
	}
	return nil
}
