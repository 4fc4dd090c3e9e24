//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
	"finkargo-billing/internal/domain/ports/repository"
)

// =============================
// In-memory store
// =============================

// memStore backs the three repositories so foreign keys and rollbacks behave
// like the real database.
type memStore struct {
	mu        sync.Mutex
	payments  map[string]*model.Payment // by reference
	subs      map[string]*model.Subscription
	companies map[string]*model.Company
}

func newMemStore() *memStore {
	return &memStore{
		payments:  map[string]*model.Payment{},
		subs:      map[string]*model.Subscription{},
		companies: map[string]*model.Company{},
	}
}

func clonePayment(p *model.Payment) *model.Payment {
	c := *p
	c.Metadata = make(map[string]any, len(p.Metadata))
	for k, v := range p.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

func cloneSub(s *model.Subscription) *model.Subscription { c := *s; return &c }
func cloneCompany(c *model.Company) *model.Company    { x := *c; return &x }

type memSnapshot struct {
	payments  map[string]*model.Payment
	subs      map[string]*model.Subscription
	companies map[string]*model.Company
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memSnapshot{map[string]*model.Payment{}, map[string]*model.Subscription{}, map[string]*model.Company{}}
	for k, v := range m.payments {
		s.payments[k] = clonePayment(v)
	}
	for k, v := range m.subs {
		s.subs[k] = cloneSub(v)
	}
	for k, v := range m.companies {
		s.companies[k] = cloneCompany(v)
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments, m.subs, m.companies = s.payments, s.subs, s.companies
}

func (m *memStore) addCompany(id string) *model.Company {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &model.Company{ID: id, Name: "Acme " + id, Country: "CO", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.companies[id] = c
	return cloneCompany(c)
}

func (m *memStore) payment(ref string) *model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[ref]; ok {
		return clonePayment(p)
	}
	return nil
}

func (m *memStore) subscriptionOf(companyID string) *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.CompanyID == companyID {
			return cloneSub(s)
		}
	}
	return nil
}

func (m *memStore) countSubs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *memStore) company(id string) *model.Company {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.companies[id]; ok {
		return cloneCompany(c)
	}
	return nil
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	store *memStore

	InsertErr          error
	FindByReferenceErr error
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func (r *MockPaymentRepo) Insert(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.InsertErr != nil {
		return r.InsertErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.companies[p.CompanyID]; !ok {
		return domain.ErrCompanyNotFound
	}
	if _, ok := r.store.payments[p.Reference]; ok {
		return domain.ErrAlreadyExists
	}
	r.store.payments[p.Reference] = clonePayment(p)
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.payments {
		if p.ID == id {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.Payment, error) {
	if r.FindByReferenceErr != nil {
		return nil, r.FindByReferenceErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.payments[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePayment(p), nil
}

func (r *MockPaymentRepo) UpdateByReference(ctx context.Context, tx repository.Tx, reference string, patch model.PaymentPatch) (*model.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.payments[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	patch.Apply(p)
	return clonePayment(p), nil
}

func (r *MockPaymentRepo) TransitionIfOpen(ctx context.Context, tx repository.Tx, reference string, patch model.PaymentPatch) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.payments[reference]
	if !ok || p.Status.IsTerminal() {
		return false, nil
	}
	patch.Apply(p)
	return true, nil
}

func (r *MockPaymentRepo) LinkSubscription(ctx context.Context, tx repository.Tx, paymentID, subscriptionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.payments {
		if p.ID == paymentID {
			id := subscriptionID
			p.SubscriptionID = &id
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *MockPaymentRepo) FindRecentOpen(ctx context.Context, tx repository.Tx, companyID string, plan model.PlanType, provider model.PaymentProvider, since time.Time) (*model.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var best *model.Payment
	for _, p := range r.store.payments {
		if p.CompanyID != companyID || p.PlanType != plan || p.Provider != provider || p.Status.IsTerminal() || p.CreatedAt.Before(since) {
			continue
		}
		if best == nil || p.CreatedAt.After(best.CreatedAt) {
			best = p
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return clonePayment(best), nil
}

func (r *MockPaymentRepo) ListOpenOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.store.payments {
		if !p.Status.IsTerminal() && p.CreatedAt.Before(olderThan) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	store *memStore

	InsertErr error
	UpdateErr error
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func (r *MockSubscriptionRepo) FindByCompany(ctx context.Context, tx repository.Tx, companyID string) (*model.Subscription, error) {
	if s := r.store.subscriptionOf(companyID); s != nil {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if s, ok := r.store.subs[id]; ok {
		return cloneSub(s), nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) Insert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if r.InsertErr != nil {
		return r.InsertErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.subs {
		if existing.CompanyID == s.CompanyID {
			return domain.ErrAlreadyExists
		}
	}
	if !s.CurrentPeriodEnd.After(s.CurrentPeriodStart) {
		return domain.ErrInvalidArgument
	}
	r.store.subs[s.ID] = cloneSub(s)
	return nil
}

func (r *MockSubscriptionRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if r.UpdateErr != nil {
		return r.UpdateErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.subs[s.ID]; !ok {
		return domain.ErrNotFound
	}
	r.store.subs[s.ID] = cloneSub(s)
	return nil
}

func (r *MockSubscriptionRepo) ListLapsed(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.store.subs {
		if s.Status == model.SubscriptionStatusActive && !s.CurrentPeriodEnd.After(now) {
			out = append(out, cloneSub(s))
		}
	}
	return out, nil
}

func (r *MockSubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := map[model.SubscriptionStatus]int{}
	for _, s := range r.store.subs {
		out[s.Status]++
	}
	return out, nil
}

// ---- Mock CompanyRepository ----

type MockCompanyRepo struct {
	store *memStore
}

var _ repository.CompanyRepository = (*MockCompanyRepo)(nil)

func (r *MockCompanyRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Company, error) {
	if c := r.store.company(id); c != nil {
		return c, nil
	}
	return nil, domain.ErrCompanyNotFound
}

func (r *MockCompanyRepo) SetSubscription(ctx context.Context, tx repository.Tx, companyID, subscriptionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.companies[companyID]
	if !ok {
		return domain.ErrCompanyNotFound
	}
	id := subscriptionID
	c.SubscriptionID = &id
	return nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	store *memStore

	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
	Calls      int
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn and restores the store snapshot when fn fails, mimicking a rollback.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.Calls++
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	if m.store == nil {
		return fn(ctx, repository.NoTX)
	}
	snap := m.store.snapshot()
	if err := fn(ctx, "mock-tx"); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu       sync.Mutex
	Provider model.PaymentProvider

	CreateCheckoutFunc func(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error)
	ParseWebhookFunc   func(payload []byte, signature, timestamp string) (*adapter.PaymentEvent, error)
	LookupPaymentFunc  func(ctx context.Context, p *model.Payment) (*adapter.PaymentEvent, error)

	Requests []adapter.CheckoutRequest
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (g *MockPaymentGateway) Name() model.PaymentProvider { return g.Provider }

func (g *MockPaymentGateway) CreateCheckout(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	g.mu.Lock()
	g.Requests = append(g.Requests, req)
	g.mu.Unlock()
	if g.CreateCheckoutFunc != nil {
		return g.CreateCheckoutFunc(ctx, req)
	}
	return &adapter.CheckoutSession{URL: "https://pay.test/" + req.Reference, ProviderID: "sess_" + req.Reference}, nil
}

func (g *MockPaymentGateway) ParseWebhook(payload []byte, signature, timestamp string) (*adapter.PaymentEvent, error) {
	if g.ParseWebhookFunc != nil {
		return g.ParseWebhookFunc(payload, signature, timestamp)
	}
	if signature != "valid" {
		return nil, domain.ErrInvalidSignature
	}
	return nil, domain.ErrMalformedEvent
}

func (g *MockPaymentGateway) LookupPayment(ctx context.Context, p *model.Payment) (*adapter.PaymentEvent, error) {
	if g.LookupPaymentFunc != nil {
		return g.LookupPaymentFunc(ctx, p)
	}
	return nil, nil
}

// MockSimulationGateway completes every checkout locally.
type MockSimulationGateway struct{ MockPaymentGateway }

func (g *MockSimulationGateway) Simulated() bool { return true }

func (g *MockSimulationGateway) ProviderPaymentID(reference string) string { return "SIM-" + reference }

// ---- Mock EventDeduper ----

type MockDeduper struct {
	mu       sync.Mutex
	seen     map[string]bool
	ClaimErr error
	Released []string
}

func NewMockDeduper() *MockDeduper { return &MockDeduper{seen: map[string]bool{}} }

var _ adapter.EventDeduper = (*MockDeduper)(nil)

func (d *MockDeduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if d.ClaimErr != nil {
		return false, d.ClaimErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *MockDeduper) Release(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	d.Released = append(d.Released, key)
	return nil
}

// ---- Mock RateLimiter ----

type MockLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	Err    error
}

func NewMockLimiter() *MockLimiter { return &MockLimiter{counts: map[string]int{}} }

var _ adapter.RateLimiter = (*MockLimiter)(nil)

func (l *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.Err != nil {
		return false, l.Err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

// ---- Mock ReceiptSender ----

type MockReceipts struct {
	mu   sync.Mutex
	Sent []string // references
	Err  error
}

var _ adapter.ReceiptSender = (*MockReceipts)(nil)

func (r *MockReceipts) SendReceipt(ctx context.Context, p *model.Payment, s *model.Subscription) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = append(r.Sent, p.Reference)
	return nil
}

// =============================
// Helpers
// =============================

var errBoom = errors.New("boom")

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

type testDeps struct {
	store     *memStore
	payments  *MockPaymentRepo
	subs      *MockSubscriptionRepo
	companies *MockCompanyRepo
	tm        *MockTxManager
	receipts  *MockReceipts
}

func newTestDeps() *testDeps {
	store := newMemStore()
	return &testDeps{
		store:     store,
		payments:  &MockPaymentRepo{store: store},
		subs:      &MockSubscriptionRepo{store: store},
		companies: &MockCompanyRepo{store: store},
		tm:        &MockTxManager{store: store},
		receipts:  &MockReceipts{},
	}
}

// seedPayment stores a PENDING payment created at createdAt.
func (d *testDeps) seedPayment(companyID, reference string, plan model.PlanType, amount int64, createdAt time.Time) *model.Payment {
	p, err := model.NewPayment("id-"+reference, companyID, reference, amount, "COP", model.ProviderWompi, plan, "", "billing@acme.test", "test")
	if err != nil {
		panic(err)
	}
	p.CreatedAt = createdAt
	d.store.mu.Lock()
	d.store.payments[reference] = p
	d.store.mu.Unlock()
	return clonePayment(p)
}
