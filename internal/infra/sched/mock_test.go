//go:build !integration

package sched

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
	"finkargo-billing/internal/domain/ports/repository"
	"finkargo-billing/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- payments ----

type fakePayments struct {
	mu      sync.Mutex
	open    []*model.Payment
	byRef   map[string]*model.Payment
	listErr error
	cutoff  time.Time
}

func newFakePayments(ps ...*model.Payment) *fakePayments {
	f := &fakePayments{byRef: map[string]*model.Payment{}}
	for _, p := range ps {
		f.open = append(f.open, p)
		f.byRef[p.Reference] = p
	}
	return f
}

func (f *fakePayments) Insert(context.Context, repository.Tx, *model.Payment) error {
	return errors.New("not implemented")
}

func (f *fakePayments) FindByID(context.Context, repository.Tx, string) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}

func (f *fakePayments) FindByReference(_ context.Context, _ repository.Tx, ref string) (*model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byRef[ref]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakePayments) UpdateByReference(context.Context, repository.Tx, string, model.PaymentPatch) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}

func (f *fakePayments) TransitionIfOpen(_ context.Context, _ repository.Tx, ref string, patch model.PaymentPatch) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byRef[ref]
	if !ok || p.Status.IsTerminal() {
		return false, nil
	}
	patch.Apply(p)
	return true, nil
}

func (f *fakePayments) LinkSubscription(context.Context, repository.Tx, string, string) error {
	return nil
}

func (f *fakePayments) FindRecentOpen(context.Context, repository.Tx, string, model.PlanType, model.PaymentProvider, time.Time) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}

func (f *fakePayments) ListOpenOlderThan(_ context.Context, _ repository.Tx, olderThan time.Time, _ int) ([]*model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = olderThan
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.open, nil
}

func (f *fakePayments) status(ref string) model.PaymentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byRef[ref].Status
}

// ---- gateway ----

type fakeGateway struct {
	provider model.PaymentProvider
	events   map[string]*adapter.PaymentEvent
	errs     map[string]error
}

func (g *fakeGateway) Name() model.PaymentProvider { return g.provider }

func (g *fakeGateway) CreateCheckout(context.Context, adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	return nil, errors.New("not implemented")
}

func (g *fakeGateway) ParseWebhook([]byte, string, string) (*adapter.PaymentEvent, error) {
	return nil, domain.ErrInvalidSignature
}

func (g *fakeGateway) LookupPayment(_ context.Context, p *model.Payment) (*adapter.PaymentEvent, error) {
	if err := g.errs[p.Reference]; err != nil {
		return nil, err
	}
	return g.events[p.Reference], nil
}

// ---- webhook use case ----

type fakeWebhooks struct {
	mu      sync.Mutex
	handled []*adapter.PaymentEvent
	fn      func(ev *adapter.PaymentEvent) (*usecase.WebhookResult, error)
}

func (f *fakeWebhooks) Process(context.Context, model.PaymentProvider, []byte, string, string) (*usecase.WebhookResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeWebhooks) HandleEvent(_ context.Context, ev *adapter.PaymentEvent) (*usecase.WebhookResult, error) {
	f.mu.Lock()
	f.handled = append(f.handled, ev)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ev)
	}
	out := usecase.OutcomeProcessing
	switch ev.Status {
	case model.PaymentStatusCompleted:
		out = usecase.OutcomeCompleted
	case model.PaymentStatusFailed:
		out = usecase.OutcomeFailed
	case model.PaymentStatusCanceled:
		out = usecase.OutcomeCanceled
	}
	return &usecase.WebhookResult{Outcome: out, Event: ev}, nil
}

// ---- subscription use case ----

type fakeSubUC struct {
	expired   map[model.SubscriptionStatus]int
	counts    map[model.SubscriptionStatus]int
	expireErr error
	countErr  error
	calls     int
}

func (f *fakeSubUC) GetByCompany(context.Context, string) (*model.Subscription, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeSubUC) ExpireLapsed(context.Context) (map[model.SubscriptionStatus]int, error) {
	f.calls++
	return f.expired, f.expireErr
}

func (f *fakeSubUC) CountByStatus(context.Context) (map[model.SubscriptionStatus]int, error) {
	return f.counts, f.countErr
}

func openPayment(ref string, provider model.PaymentProvider, created time.Time) *model.Payment {
	return &model.Payment{
		ID:        "pay-" + ref,
		CompanyID: "company-1",
		Reference: ref,
		Amount:    100_000_000,
		Currency:  "COP",
		Status:    model.PaymentStatusPending,
		Provider:  provider,
		PlanType:  model.PlanAnual,
		CreatedAt: created,
		UpdatedAt: created,
	}
}
