package api

import (
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

const maxWebhookBody = 64 << 10

func (s *Server) handleWompiWebhook(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get("wompi-signature")
	if sig == "" {
		sig = r.Header.Get("x-event-checksum")
	}
	s.handleWebhook(w, r, model.ProviderWompi, sig, r.Header.Get("wompi-timestamp"))
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	s.handleWebhook(w, r, model.ProviderStripe, r.Header.Get("stripe-signature"), "")
}

// handleWebhook acknowledges every delivery whose signature verifies. Internal
// failures are logged for manual reconciliation instead of triggering provider retries.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request, provider model.PaymentProvider, signature, timestamp string) {
	started := time.Now()
	ctx := logging.WithProvider(r.Context(), string(provider))
	log := logging.With(ctx, s.log)
	p := strings.ToLower(string(provider))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Warn().Err(err).Msg("webhook body unreadable")
		metrics.ObserveWebhook(p, "unreadable", started)
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	res, err := s.webhookUC.Process(ctx, provider, body, signature, timestamp)
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		metrics.ObserveWebhook(p, "invalid_signature", started)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	case errors.Is(err, domain.ErrMalformedEvent):
		metrics.ObserveWebhook(p, "malformed", started)
		writeError(w, http.StatusBadRequest, "malformed event")
		return
	case errors.Is(err, domain.ErrInvalidArgument) && res == nil:
		// provider not configured in this deployment
		metrics.ObserveWebhook(p, "disabled", started)
		writeError(w, http.StatusNotFound, "provider not enabled")
		return
	case err != nil:
		metrics.ObserveWebhook(p, string(usecase.OutcomeError), started)
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": usecase.OutcomeError})
		return
	}

	metrics.RecordWebhookOutcome(res)
	metrics.ObserveWebhook(p, string(res.Outcome), started)
	out := map[string]any{"received": true, "outcome": res.Outcome}
	if res.Event != nil && res.Event.Reference != "" {
		out["reference"] = res.Event.Reference
	}
	writeJSON(w, http.StatusOK, out)
}
