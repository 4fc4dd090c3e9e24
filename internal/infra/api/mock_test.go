//go:build !integration

package api_test

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"finkargo-billing/internal/config"
	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
	"finkargo-billing/internal/infra/api"
	"finkargo-billing/internal/usecase"
)

// ---- Mock CheckoutUseCase ----

type mockCheckoutUC struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, in usecase.CheckoutInput) (*usecase.CheckoutResult, error)
	calls []usecase.CheckoutInput
}

func (m *mockCheckoutUC) CreateCheckout(ctx context.Context, in usecase.CheckoutInput) (*usecase.CheckoutResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, in)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(ctx, in)
	}
	p := testPayment(in.CompanyID, "FINKARGO_01TEST")
	p.Provider = in.Provider
	return &usecase.CheckoutResult{Payment: p, CheckoutURL: "https://checkout.test/FINKARGO_01TEST"}, nil
}

// ---- Mock WebhookUseCase ----

type webhookCall struct {
	Provider  model.PaymentProvider
	Payload   string
	Signature string
	Timestamp string
}

type mockWebhookUC struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, provider model.PaymentProvider, payload []byte, sig, ts string) (*usecase.WebhookResult, error)
	calls []webhookCall
}

func (m *mockWebhookUC) Process(ctx context.Context, provider model.PaymentProvider, payload []byte, sig, ts string) (*usecase.WebhookResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, webhookCall{provider, string(payload), sig, ts})
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(ctx, provider, payload, sig, ts)
	}
	if sig != "good" {
		return nil, domain.ErrInvalidSignature
	}
	ev := &adapter.PaymentEvent{Provider: provider, Reference: "FINKARGO_01TEST", Status: model.PaymentStatusCompleted}
	return &usecase.WebhookResult{Outcome: usecase.OutcomeCompleted, Event: ev}, nil
}

func (m *mockWebhookUC) HandleEvent(ctx context.Context, ev *adapter.PaymentEvent) (*usecase.WebhookResult, error) {
	return &usecase.WebhookResult{Outcome: usecase.OutcomeIgnored, Event: ev}, nil
}

// ---- Mock PaymentUseCase ----

type mockPaymentUC struct {
	byRef map[string]*usecase.PaymentDetails
	err   error
}

func (m *mockPaymentUC) CreatePayment(ctx context.Context, in usecase.NewPaymentInput) (*model.Payment, error) {
	return nil, domain.ErrInvalidArgument
}

func (m *mockPaymentUC) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, d := range m.byRef {
		if d.Payment.ID == id {
			return d.Payment, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockPaymentUC) GetPaymentByReference(ctx context.Context, reference string) (*usecase.PaymentDetails, error) {
	if m.err != nil {
		return nil, m.err
	}
	if d, ok := m.byRef[reference]; ok {
		return d, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockPaymentUC) UpdatePaymentByReference(ctx context.Context, reference string, patch model.PaymentPatch) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}

func (m *mockPaymentUC) CompletePayment(ctx context.Context, reference, providerPaymentID string) (*usecase.Completion, error) {
	return nil, domain.ErrNotFound
}

func (m *mockPaymentUC) CompletePaymentWith(ctx context.Context, reference string, in usecase.CompletionInput) (*usecase.Completion, error) {
	return nil, domain.ErrNotFound
}

// ---- Mock SubscriptionUseCase ----

type mockSubUC struct {
	byCompany map[string]*model.Subscription
}

func (m *mockSubUC) GetByCompany(ctx context.Context, companyID string) (*model.Subscription, error) {
	if s, ok := m.byCompany[companyID]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubUC) ExpireLapsed(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return map[model.SubscriptionStatus]int{}, nil
}

func (m *mockSubUC) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return map[model.SubscriptionStatus]int{}, nil
}

// ---- Helpers ----

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func testPayment(companyID, reference string) *model.Payment {
	return &model.Payment{
		ID:           "pay-" + reference,
		CompanyID:    companyID,
		Reference:    reference,
		Amount:       100_000_000,
		Currency:     "COP",
		Status:       model.PaymentStatusPending,
		Provider:     model.ProviderWompi,
		PlanType:     model.PlanAnual,
		BillingCycle: model.BillingYearly,
		Metadata:     map[string]any{},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

type testServer struct {
	handler  http.Handler
	sessions *api.SessionManager
	checkout *mockCheckoutUC
	webhooks *mockWebhookUC
	payments *mockPaymentUC
	subs     *mockSubUC
	checks   map[string]api.HealthCheck
}

func newTestServer() *testServer {
	ts := &testServer{
		sessions: api.NewSessionManager(config.AuthConfig{SessionSecret: "test-secret", CookieName: "finkargo_session", TTL: time.Hour}),
		checkout: &mockCheckoutUC{},
		webhooks: &mockWebhookUC{},
		payments: &mockPaymentUC{byRef: map[string]*usecase.PaymentDetails{}},
		subs:     &mockSubUC{byCompany: map[string]*model.Subscription{}},
		checks:   map[string]api.HealthCheck{},
	}
	srv := api.NewServer(ts.checkout, ts.webhooks, ts.payments, ts.subs, ts.sessions, newTestLogger(),
		api.Options{RequestTimeout: time.Second, HealthChecks: ts.checks})
	ts.handler = srv.Routes()
	return ts
}

func (ts *testServer) token(companyID, email string) string {
	tok, err := ts.sessions.Mint(nil, companyID, email, "owner")
	if err != nil {
		panic(err)
	}
	return tok
}
