// File: internal/infra/adapters/payment/wompi_gateway.go
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finkargo-billing/internal/config"
	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*WompiGateway)(nil)

// WompiGateway builds Web Checkout links signed with the integrity secret,
// verifies event notifications and reads transactions back over REST.
type WompiGateway struct {
	publicKey       string
	privateKey      string
	eventsSecret    string
	integritySecret string
	apiBase         string
	checkoutURL     string
	redirectURL     string
	client          *http.Client
}

func NewWompiGateway(cfg config.WompiConfig) (*WompiGateway, error) {
	if cfg.PublicKey == "" || cfg.EventsSecret == "" || cfg.IntegritySecret == "" {
		return nil, errors.New("wompi public key, events secret and integrity secret are required")
	}
	if _, err := url.Parse(cfg.CheckoutURL); err != nil {
		return nil, fmt.Errorf("invalid checkout url: %w", err)
	}
	return &WompiGateway{
		publicKey:       cfg.PublicKey,
		privateKey:      cfg.PrivateKey,
		eventsSecret:    cfg.EventsSecret,
		integritySecret: cfg.IntegritySecret,
		apiBase:         strings.TrimRight(cfg.APIBaseURL, "/"),
		checkoutURL:     cfg.CheckoutURL,
		redirectURL:     cfg.RedirectURL,
		client:          &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// WithHTTPClient swaps the client used for transaction lookups.
func (w *WompiGateway) WithHTTPClient(c *http.Client) *WompiGateway {
	w.client = c
	return w
}

func (w *WompiGateway) Name() model.PaymentProvider { return model.ProviderWompi }

// IntegritySignature is the checkout-link signature: sha256(reference + amount + currency + secret).
func IntegritySignature(reference string, amountInCents int64, currency, secret string) string {
	sum := sha256.Sum256([]byte(reference + strconv.FormatInt(amountInCents, 10) + currency + secret))
	return hex.EncodeToString(sum[:])
}

// EventSignature is the event notification signature:
// HMAC-SHA256 keyed by the events secret over body + timestamp + secret.
func EventSignature(body []byte, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

func (w *WompiGateway) CreateCheckout(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	if req.Reference == "" || req.AmountInCents <= 0 || req.Currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	redirect := req.RedirectURL
	if redirect == "" {
		redirect = w.redirectURL
	}
	currency := strings.ToUpper(req.Currency)
	sig := IntegritySignature(req.Reference, req.AmountInCents, currency, w.integritySecret)

	q := url.Values{}
	q.Set("public-key", w.publicKey)
	q.Set("currency", currency)
	q.Set("amount-in-cents", strconv.FormatInt(req.AmountInCents, 10))
	q.Set("reference", req.Reference)
	q.Set("signature:integrity", sig)
	if redirect != "" {
		q.Set("redirect-url", redirect)
	}
	if req.CustomerEmail != "" {
		q.Set("customer-data:email", req.CustomerEmail)
	}
	return &adapter.CheckoutSession{
		URL:       w.checkoutURL + "?" + q.Encode(),
		Signature: sig,
	}, nil
}

type wompiTransaction struct {
	ID                string `json:"id"`
	Reference         string `json:"reference"`
	Status            string `json:"status"`
	StatusMessage     string `json:"status_message"`
	AmountInCents     int64  `json:"amount_in_cents"`
	Currency          string `json:"currency"`
	PaymentMethodType string `json:"payment_method_type"`
	CreatedAt         string `json:"created_at"`
}

type wompiEvent struct {
	Event string `json:"event"`
	Data  struct {
		Transaction wompiTransaction `json:"transaction"`
	} `json:"data"`
	Environment string `json:"environment"`
	Timestamp   int64  `json:"timestamp"`
	SentAt      string `json:"sent_at"`
}

func (w *WompiGateway) ParseWebhook(payload []byte, signature, timestamp string) (*adapter.PaymentEvent, error) {
	return parseWompiEvent(payload, signature, timestamp, w.eventsSecret)
}

func parseWompiEvent(payload []byte, signature, timestamp, secret string) (*adapter.PaymentEvent, error) {
	if timestamp == "" {
		timestamp = bodyTimestamp(payload)
	}
	if signature == "" || timestamp == "" {
		return nil, domain.ErrInvalidSignature
	}
	expected := EventSignature(payload, timestamp, secret)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return nil, domain.ErrInvalidSignature
	}

	var ev wompiEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	tx := ev.Data.Transaction
	out := &adapter.PaymentEvent{
		Provider:   model.ProviderWompi,
		Type:       ev.Event,
		OccurredAt: time.Now(),
		Payload:    json.RawMessage(payload),
	}
	if ev.Timestamp > 0 {
		out.OccurredAt = time.Unix(ev.Timestamp, 0)
	}
	if ev.Event != "transaction.updated" || tx.Reference == "" {
		out.Ignored = true
		return out, nil
	}
	fillFromTransaction(out, tx)
	out.EventID = tx.ID + ":" + strings.ToUpper(tx.Status)
	return out, nil
}

// bodyTimestamp reads only the top-level timestamp, for deliveries without the
// timestamp header. The rest of the event is decoded after the checksum matches.
func bodyTimestamp(payload []byte) string {
	var head struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.Timestamp <= 0 {
		return ""
	}
	return strconv.FormatInt(head.Timestamp, 10)
}

func fillFromTransaction(out *adapter.PaymentEvent, tx wompiTransaction) {
	out.Reference = tx.Reference
	out.ProviderPaymentID = tx.ID
	out.RawStatus = tx.Status
	out.Status = MapStatus(tx.Status)
	out.AmountInCents = tx.AmountInCents
	out.Currency = tx.Currency
	out.PaymentMethod = tx.PaymentMethodType
	if out.Status == model.PaymentStatusFailed || out.Status == model.PaymentStatusCanceled {
		out.FailureReason = strings.TrimSpace(tx.Status + ": " + tx.StatusMessage)
		out.FailureReason = strings.TrimSuffix(out.FailureReason, ":")
	}
}

// LookupPayment reads the latest transaction recorded for the payment reference.
func (w *WompiGateway) LookupPayment(ctx context.Context, p *model.Payment) (*adapter.PaymentEvent, error) {
	if w.privateKey == "" {
		return nil, errors.New("wompi lookup requires a private key")
	}
	endpoint := w.apiBase + "/transactions?reference=" + url.QueryEscape(p.Reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+w.privateKey)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: wompi http %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: wompi http %d", domain.ErrGatewayRejected, resp.StatusCode)
	}

	var out struct {
		Data []wompiTransaction `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	// a reference can carry several attempts; an approved one wins, otherwise the latest
	tx := out.Data[0]
	for _, t := range out.Data {
		if strings.EqualFold(t.Status, "APPROVED") {
			tx = t
			break
		}
		if t.CreatedAt > tx.CreatedAt {
			tx = t
		}
	}
	ev := &adapter.PaymentEvent{
		Provider:   model.ProviderWompi,
		Type:       "transaction.lookup",
		OccurredAt: time.Now(),
		Payload:    json.RawMessage(body),
	}
	fillFromTransaction(ev, tx)
	ev.EventID = tx.ID + ":" + strings.ToUpper(tx.Status)
	return ev, nil
}
