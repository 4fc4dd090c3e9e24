// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
	"finkargo-billing/internal/domain/ports/repository"
	"finkargo-billing/internal/infra/logging"
)

var _ WebhookUseCase = (*webhookUC)(nil)

// Outcome describes what a provider event did to the payment.
type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeFailed           Outcome = "failed"
	OutcomeCanceled         Outcome = "canceled"
	OutcomeProcessing       Outcome = "processing"
	OutcomeStale            Outcome = "stale" // payment already terminal
	OutcomeError            Outcome = "error"
)

type WebhookResult struct {
	Outcome    Outcome
	Event      *adapter.PaymentEvent
	Completion *Completion // set for OutcomeCompleted
}

type WebhookUseCase interface {
	// Process verifies and applies a raw provider notification. Only signature
	// and payload problems are returned as errors; business failures are folded
	// into the result so the caller can still acknowledge the delivery.
	Process(ctx context.Context, provider model.PaymentProvider, payload []byte, signature, timestamp string) (*WebhookResult, error)
	// HandleEvent applies an already verified event.
	HandleEvent(ctx context.Context, ev *adapter.PaymentEvent) (*WebhookResult, error)
}

type webhookUC struct {
	gateways  map[model.PaymentProvider]adapter.PaymentGateway
	payments  repository.PaymentRepository
	paymentUC PaymentUseCase
	deduper   adapter.EventDeduper
	dedupeTTL time.Duration

	log *zerolog.Logger
	now func() time.Time
}

// NewWebhookUseCase wires webhook processing. deduper may be nil.
func NewWebhookUseCase(
	gateways map[model.PaymentProvider]adapter.PaymentGateway,
	payments repository.PaymentRepository,
	paymentUC PaymentUseCase,
	deduper adapter.EventDeduper,
	dedupeTTL time.Duration,
	logger *zerolog.Logger,
) *webhookUC {
	return &webhookUC{
		gateways:  gateways,
		payments:  payments,
		paymentUC: paymentUC,
		deduper:   deduper,
		dedupeTTL: dedupeTTL,
		log:       logger,
		now:       time.Now,
	}
}

func (u *webhookUC) Process(ctx context.Context, provider model.PaymentProvider, payload []byte, signature, timestamp string) (*WebhookResult, error) {
	ctx = logging.WithProvider(ctx, string(provider))
	log := logging.With(ctx, u.log)

	gw, ok := u.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("%w: provider %s is not configured", domain.ErrInvalidArgument, provider)
	}
	ev, err := gw.ParseWebhook(payload, signature, timestamp)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(payload)).Msg("webhook rejected")
		return nil, err
	}
	return u.HandleEvent(ctx, ev)
}

func (u *webhookUC) HandleEvent(ctx context.Context, ev *adapter.PaymentEvent) (*WebhookResult, error) {
	ctx = logging.WithReference(logging.WithProvider(ctx, string(ev.Provider)), ev.Reference)
	log := logging.With(ctx, u.log)

	res := &WebhookResult{Event: ev}
	if ev.Ignored || ev.Reference == "" {
		log.Debug().Str("type", ev.Type).Msg("event ignored")
		res.Outcome = OutcomeIgnored
		return res, nil
	}

	var key string
	if u.deduper != nil && ev.EventID != "" {
		key = "webhook:" + strings.ToLower(string(ev.Provider)) + ":" + ev.EventID
		fresh, err := u.deduper.Claim(ctx, key, u.dedupeTTL)
		switch {
		case err != nil:
			// the status guard below still keeps replays harmless
			log.Warn().Err(err).Msg("dedupe unavailable")
			key = ""
		case !fresh:
			log.Info().Str("event_id", ev.EventID).Msg("duplicate delivery")
			res.Outcome = OutcomeDuplicate
			return res, nil
		}
	}

	outcome, completion, err := u.apply(ctx, ev)
	res.Outcome, res.Completion = outcome, completion
	if err != nil {
		res.Outcome = OutcomeError
		if key != "" {
			if rerr := u.deduper.Release(ctx, key); rerr != nil {
				log.Warn().Err(rerr).Msg("dedupe release failed")
			}
		}
		log.Error().Err(err).
			Str("event_id", ev.EventID).
			Str("raw_status", ev.RawStatus).
			Msg("webhook processing failed; needs manual reconciliation")
		return res, err
	}

	log.Info().
		Str("event_id", ev.EventID).
		Str("raw_status", ev.RawStatus).
		Str("outcome", string(res.Outcome)).
		Msg("webhook processed")
	return res, nil
}

func (u *webhookUC) apply(ctx context.Context, ev *adapter.PaymentEvent) (Outcome, *Completion, error) {
	log := logging.With(ctx, u.log)

	p, err := u.payments.FindByReference(ctx, repository.NoTX, ev.Reference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Str("event_id", ev.EventID).Msg("webhook for unknown payment reference")
			return OutcomeUnknownReference, nil, nil
		}
		return OutcomeError, nil, err
	}
	if p.Provider != ev.Provider {
		log.Warn().Str("payment_provider", string(p.Provider)).Msg("event provider does not match payment")
	}

	switch ev.Status {
	case model.PaymentStatusCompleted:
		if ev.AmountInCents > 0 && ev.AmountInCents != p.Amount {
			log.Warn().Int64("expected", p.Amount).Int64("got", ev.AmountInCents).Msg("amount mismatch on approval")
		}
		c, err := u.paymentUC.CompletePaymentWith(ctx, ev.Reference, CompletionInput{
			ProviderPaymentID: ev.ProviderPaymentID,
			PaymentMethod:     ev.PaymentMethod,
			Metadata:          eventMetadata(ev),
		})
		if err != nil {
			if errors.Is(err, domain.ErrPaymentTerminal) {
				return OutcomeStale, nil, nil
			}
			return OutcomeError, nil, err
		}
		if c.AlreadyCompleted {
			return OutcomeAlreadyCompleted, c, nil
		}
		return OutcomeCompleted, c, nil

	case model.PaymentStatusFailed, model.PaymentStatusCanceled:
		status := ev.Status
		now := u.now()
		patch := model.PaymentPatch{Status: &status, FailedAt: &now, Metadata: eventMetadata(ev)}
		reason := ev.FailureReason
		if reason == "" {
			reason = ev.RawStatus
		}
		if reason != "" {
			patch.FailureReason = &reason
		}
		if ev.ProviderPaymentID != "" {
			patch.ProviderPaymentID = &ev.ProviderPaymentID
		}
		if ev.PaymentMethod != "" {
			patch.PaymentMethod = &ev.PaymentMethod
		}
		changed, err := u.payments.TransitionIfOpen(ctx, repository.NoTX, ev.Reference, patch)
		if err != nil {
			return OutcomeError, nil, err
		}
		if !changed {
			return OutcomeStale, nil, nil
		}
		if status == model.PaymentStatusFailed {
			return OutcomeFailed, nil, nil
		}
		return OutcomeCanceled, nil, nil

	default:
		processing := model.PaymentStatusProcessing
		patch := model.PaymentPatch{Status: &processing, Metadata: eventMetadata(ev)}
		if ev.ProviderPaymentID != "" {
			patch.ProviderPaymentID = &ev.ProviderPaymentID
		}
		if ev.PaymentMethod != "" {
			patch.PaymentMethod = &ev.PaymentMethod
		}
		changed, err := u.payments.TransitionIfOpen(ctx, repository.NoTX, ev.Reference, patch)
		if err != nil {
			return OutcomeError, nil, err
		}
		if !changed {
			return OutcomeStale, nil, nil
		}
		return OutcomeProcessing, nil, nil
	}
}

func eventMetadata(ev *adapter.PaymentEvent) map[string]any {
	return map[string]any{
		model.MetaProviderEvent: map[string]any{
			"id":         ev.EventID,
			"type":       ev.Type,
			"raw_status": ev.RawStatus,
		},
	}
}
