//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
	"finkargo-billing/internal/usecase"
)

type checkoutFixture struct {
	*testDeps
	wompi   *MockPaymentGateway
	stripe  *MockPaymentGateway
	limiter *MockLimiter
	uc      usecase.CheckoutUseCase
}

func newCheckoutFixture(policy usecase.CheckoutPolicy, wompi adapter.PaymentGateway) *checkoutFixture {
	d := newTestDeps()
	d.store.addCompany("co-1")
	f := &checkoutFixture{
		testDeps: d,
		stripe:   &MockPaymentGateway{Provider: model.ProviderStripe},
		limiter:  NewMockLimiter(),
	}
	if wompi == nil {
		f.wompi = &MockPaymentGateway{Provider: model.ProviderWompi}
		wompi = f.wompi
	}
	providers := map[model.PaymentProvider]usecase.CheckoutProvider{
		model.ProviderWompi: {
			Gateway: wompi, Prices: model.DefaultWompiPrices, Currency: "COP",
			RedirectURL: "https://app.test/billing/return",
		},
		model.ProviderStripe: {
			Gateway:  f.stripe,
			Prices:   model.PriceTable{model.PlanBasic: 49900, model.PlanProfessional: 99900, model.PlanEnterprise: 249900},
			Currency: "MXN", RedirectURL: "https://app.test/ok", CancelURL: "https://app.test/cancel",
		},
	}
	payUC := usecase.NewPaymentUseCase(d.payments, d.subs, d.companies, d.tm, d.receipts, newTestLogger())
	f.uc = usecase.NewCheckoutUseCase(providers, d.payments, d.subs, payUC, f.limiter, policy, newTestLogger())
	return f
}

var defaultPolicy = usecase.CheckoutPolicy{DuplicateWindow: 10 * time.Minute, RenewalWindow: 7 * 24 * time.Hour, RateLimit: 5}

func TestCheckoutUseCase_CreateCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("should store a pending payment and return the provider url", func(t *testing.T) {
		f := newCheckoutFixture(defaultPolicy, nil)

		res, err := f.uc.CreateCheckout(ctx, usecase.CheckoutInput{
			CompanyID: "co-1", Email: " billing@acme.test ", Provider: model.ProviderWompi, PlanType: "anual",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(res.Payment.Reference, usecase.ReferencePrefix) {
			t.Errorf("reference %q lacks prefix", res.Payment.Reference)
		}
		if res.CheckoutURL != "https://pay.test/"+res.Payment.Reference || res.Simulated {
			t.Errorf("unexpected result: %+v", res)
		}

		p := f.store.payment(res.Payment.Reference)
		if p.Status != model.PaymentStatusPending || p.Amount != model.DefaultWompiPrices[model.PlanAnual] ||
			p.PlanType != model.PlanAnual || p.BillingCycle != model.BillingYearly || p.CustomerEmail != "billing@acme.test" {
			t.Errorf("unexpected stored payment: %+v", p)
		}
		if p.Metadata[model.MetaCheckoutURL] != res.CheckoutURL || p.Metadata[model.MetaCheckoutSession] != "sess_"+p.Reference {
			t.Errorf("checkout metadata missing: %v", p.Metadata)
		}

		req := f.wompi.Requests[0]
		if req.AmountInCents != p.Amount || req.Currency != "COP" || req.RedirectURL != "https://app.test/billing/return" ||
			req.Metadata["company_id"] != "co-1" {
			t.Errorf("unexpected gateway request: %+v", req)
		}
	})

	t.Run("should price yearly tier plans at ten months", func(t *testing.T) {
		f := newCheckoutFixture(defaultPolicy, nil)
		res, err := f.uc.CreateCheckout(ctx, usecase.CheckoutInput{
			CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderStripe, PlanType: "professional", BillingCycle: "yearly",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Payment.Amount != 999000 || res.Payment.Currency != "MXN" || res.Payment.BillingCycle != model.BillingYearly {
			t.Errorf("unexpected payment: %+v", res.Payment)
		}
		if f.stripe.Requests[0].CancelURL != "https://app.test/cancel" {
			t.Errorf("cancel url not forwarded")
		}
	})

	validation := []struct {
		name string
		in   usecase.CheckoutInput
		want error
	}{
		{"unsupported plan", usecase.CheckoutInput{CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "gold"}, domain.ErrUnsupportedPlan},
		{"plan not priced for provider", usecase.CheckoutInput{CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "BASIC"}, domain.ErrUnsupportedPlan},
		{"missing email", usecase.CheckoutInput{CompanyID: "co-1", Email: "  ", Provider: model.ProviderWompi, PlanType: "ANUAL"}, domain.ErrInvalidArgument},
		{"unknown provider", usecase.CheckoutInput{CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderPayU, PlanType: "ANUAL"}, domain.ErrInvalidArgument},
		{"unknown company", usecase.CheckoutInput{CompanyID: "ghost", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "ANUAL"}, domain.ErrCompanyNotFound},
		{"missing company", usecase.CheckoutInput{Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "ANUAL"}, domain.ErrCompanyNotFound},
	}
	for _, tc := range validation {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			f := newCheckoutFixture(defaultPolicy, nil)
			if _, err := f.uc.CreateCheckout(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if len(f.wompi.Requests) != 0 {
				t.Errorf("gateway must not be called")
			}
		})
	}

	t.Run("should reject a second checkout inside the duplicate window", func(t *testing.T) {
		f := newCheckoutFixture(defaultPolicy, nil)
		in := usecase.CheckoutInput{CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "SEMESTRAL"}
		first, err := f.uc.CreateCheckout(ctx, in)
		if err != nil {
			t.Fatalf("first checkout failed: %v", err)
		}
		_, err = f.uc.CreateCheckout(ctx, in)
		if !errors.Is(err, domain.ErrDuplicatePayment) || !strings.Contains(err.Error(), first.Payment.Reference) {
			t.Errorf("expected ErrDuplicatePayment naming %s, got %v", first.Payment.Reference, err)
		}

		// a different plan is allowed
		in.PlanType = "TRIMESTRAL"
		if _, err := f.uc.CreateCheckout(ctx, in); err != nil {
			t.Errorf("different plan should be allowed: %v", err)
		}
	})

	t.Run("should allow a new checkout once the previous one is old", func(t *testing.T) {
		f := newCheckoutFixture(defaultPolicy, nil)
		f.seedPayment("co-1", "FINKARGO_OLD", model.PlanSemestral, 100, time.Now().Add(-time.Hour))
		if _, err := f.uc.CreateCheckout(ctx, usecase.CheckoutInput{
			CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "SEMESTRAL",
		}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("should refuse the plan already active", func(t *testing.T) {
		f := newCheckoutFixture(defaultPolicy, nil)
		terms, _ := model.TermsFor(model.PlanAnual, "")
		s, _ := model.NewSubscription("sub-1", "co-1", terms, time.Now())
		_ = f.subs.Insert(ctx, nil, s)

		_, err := f.uc.CreateCheckout(ctx, usecase.CheckoutInput{CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "ANUAL"})
		if !errors.Is(err, domain.ErrActiveSubscriptionExists) {
			t.Errorf("expected ErrActiveSubscriptionExists, got %v", err)
		}
		// upgrading to another plan is fine
		if _, err := f.uc.CreateCheckout(ctx, usecase.CheckoutInput{CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "TRIMESTRAL"}); err != nil {
			t.Errorf("other plan should be allowed: %v", err)
		}
	})

	t.Run("should allow renewal near period end", func(t *testing.T) {
		f := newCheckoutFixture(defaultPolicy, nil)
		terms, _ := model.TermsFor(model.PlanTrimestral, "")
		s, _ := model.NewSubscription("sub-1", "co-1", terms, time.Now().AddDate(0, -3, 3))
		_ = f.subs.Insert(ctx, nil, s)

		if _, err := f.uc.CreateCheckout(ctx, usecase.CheckoutInput{CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "TRIMESTRAL"}); err != nil {
			t.Errorf("renewal should be allowed: %v", err)
		}
	})

	t.Run("should rate limit per company", func(t *testing.T) {
		f := newCheckoutFixture(usecase.CheckoutPolicy{RateLimit: 2}, nil)
		in := usecase.CheckoutInput{CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "TRIMESTRAL"}
		for i := 0; i < 2; i++ {
			if _, err := f.uc.CreateCheckout(ctx, in); err != nil {
				t.Fatalf("call %d: %v", i, err)
			}
		}
		if _, err := f.uc.CreateCheckout(ctx, in); !errors.Is(err, domain.ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
	})

	t.Run("should fail open when the limiter is down", func(t *testing.T) {
		f := newCheckoutFixture(defaultPolicy, nil)
		f.limiter.Err = errBoom
		if _, err := f.uc.CreateCheckout(ctx, usecase.CheckoutInput{CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "ANUAL"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("should mark the payment failed when the gateway errors", func(t *testing.T) {
		f := newCheckoutFixture(defaultPolicy, nil)
		var ref string
		f.wompi.CreateCheckoutFunc = func(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
			ref = req.Reference
			return nil, fmt.Errorf("dial tcp: connection refused")
		}

		_, err := f.uc.CreateCheckout(ctx, usecase.CheckoutInput{CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "ANUAL"})
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
		}
		p := f.store.payment(ref)
		if p == nil || p.Status != model.PaymentStatusFailed || p.FailureReason == nil || !strings.HasPrefix(*p.FailureReason, "checkout: ") {
			t.Errorf("payment should be FAILED with a reason, got %+v", p)
		}
	})

	t.Run("should keep rejected errors as they are", func(t *testing.T) {
		f := newCheckoutFixture(defaultPolicy, nil)
		f.wompi.CreateCheckoutFunc = func(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
			return nil, fmt.Errorf("%w: invalid amount", domain.ErrGatewayRejected)
		}
		_, err := f.uc.CreateCheckout(ctx, usecase.CheckoutInput{CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "ANUAL"})
		if !errors.Is(err, domain.ErrGatewayRejected) || errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Errorf("expected ErrGatewayRejected only, got %v", err)
		}
	})

	t.Run("simulation completes the payment immediately", func(t *testing.T) {
		sim := &MockSimulationGateway{MockPaymentGateway{Provider: model.ProviderWompi}}
		f := newCheckoutFixture(defaultPolicy, sim)

		res, err := f.uc.CreateCheckout(ctx, usecase.CheckoutInput{CompanyID: "co-1", Email: "a@b.co", Provider: model.ProviderWompi, PlanType: "SEMESTRAL"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Simulated || res.Payment.Status != model.PaymentStatusCompleted || res.Subscription == nil {
			t.Fatalf("expected a completed simulated checkout, got %+v", res)
		}
		p := f.store.payment(res.Payment.Reference)
		if p.ProviderPaymentID == nil || *p.ProviderPaymentID != "SIM-"+p.Reference {
			t.Errorf("unexpected provider id: %v", p.ProviderPaymentID)
		}
		if s := f.store.subscriptionOf("co-1"); s == nil || s.Plan != model.PlanSemestral {
			t.Errorf("subscription not activated: %+v", s)
		}
	})
}
