package payment

import (
	"context"
	"net/url"
	"sync"
	"time"

	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*SimulationGateway)(nil)

// SimulationGateway stands in for Wompi when payment.simulation is set.
// Checkouts never leave the process and every lookup reports an approval.
type SimulationGateway struct {
	mu          sync.Mutex
	secret      string
	redirectURL string
	intents     map[string]int64 // reference -> amount in cents
}

func NewSimulationGateway(eventsSecret, redirectURL string) *SimulationGateway {
	if eventsSecret == "" {
		eventsSecret = "simulation"
	}
	return &SimulationGateway{
		secret:      eventsSecret,
		redirectURL: redirectURL,
		intents:     make(map[string]int64),
	}
}

func (g *SimulationGateway) Name() model.PaymentProvider { return model.ProviderWompi }

// Simulated marks the gateway so checkouts complete immediately.
func (g *SimulationGateway) Simulated() bool { return true }

// ProviderPaymentID is the id recorded for a simulated approval.
func (g *SimulationGateway) ProviderPaymentID(reference string) string { return "SIM-" + reference }

func (g *SimulationGateway) CreateCheckout(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	if req.Reference == "" || req.AmountInCents <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	g.mu.Lock()
	g.intents[req.Reference] = req.AmountInCents
	g.mu.Unlock()

	base := req.RedirectURL
	if base == "" {
		base = g.redirectURL
	}
	if base == "" {
		base = "http://localhost/dashboard/billing/result"
	}
	q := url.Values{}
	q.Set("reference", req.Reference)
	q.Set("simulated", "true")
	return &adapter.CheckoutSession{
		URL:        base + "?" + q.Encode(),
		ProviderID: g.ProviderPaymentID(req.Reference),
	}, nil
}

// ParseWebhook accepts Wompi-shaped events signed with the simulation secret.
func (g *SimulationGateway) ParseWebhook(payload []byte, signature, timestamp string) (*adapter.PaymentEvent, error) {
	return parseWompiEvent(payload, signature, timestamp, g.secret)
}

func (g *SimulationGateway) LookupPayment(ctx context.Context, p *model.Payment) (*adapter.PaymentEvent, error) {
	g.mu.Lock()
	amount, ok := g.intents[p.Reference]
	g.mu.Unlock()
	if !ok {
		amount = p.Amount
	}
	return &adapter.PaymentEvent{
		Provider:          model.ProviderWompi,
		EventID:           g.ProviderPaymentID(p.Reference) + ":APPROVED",
		Type:              "transaction.lookup",
		Reference:         p.Reference,
		ProviderPaymentID: g.ProviderPaymentID(p.Reference),
		Status:            model.PaymentStatusCompleted,
		RawStatus:         "APPROVED",
		PaymentMethod:     "SIMULATION",
		AmountInCents:     amount,
		Currency:          p.Currency,
		OccurredAt:        time.Now(),
	}, nil
}
