package sched

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
	"finkargo-billing/internal/domain/ports/repository"
	"finkargo-billing/internal/infra/logging"
	"finkargo-billing/internal/infra/metrics"
	"finkargo-billing/internal/usecase"
)

const (
	reconcileBatch       = 200
	reconcileConcurrency = 4
	abandonedReason      = "abandoned"
)

// PaymentReconciler periodically asks the providers about open payments whose
// webhook never arrived, and feeds the answer through the same path as a
// webhook. Payments the provider never heard of are canceled after abandonAfter.
type PaymentReconciler struct {
	payments repository.PaymentRepository
	gateways map[model.PaymentProvider]adapter.PaymentGateway
	webhooks usecase.WebhookUseCase

	interval     time.Duration
	staleAfter   time.Duration
	abandonAfter time.Duration

	log *zerolog.Logger
	now func() time.Time
}

type ReconcileStats struct {
	Checked   int
	Resolved  int
	Abandoned int
	Errors    int
}

func NewPaymentReconciler(
	payments repository.PaymentRepository,
	gateways map[model.PaymentProvider]adapter.PaymentGateway,
	webhooks usecase.WebhookUseCase,
	interval, staleAfter, abandonAfter time.Duration,
	logger *zerolog.Logger,
) *PaymentReconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if abandonAfter < staleAfter {
		abandonAfter = 24 * time.Hour
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		payments:     payments,
		gateways:     gateways,
		webhooks:     webhooks,
		interval:     interval,
		staleAfter:   staleAfter,
		abandonAfter: abandonAfter,
		log:          &l,
		now:          time.Now,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one reconciliation pass.
func (w *PaymentReconciler) Tick(ctx context.Context) ReconcileStats {
	started := w.now()
	open, err := w.payments.ListOpenOlderThan(ctx, repository.NoTX, started.Add(-w.staleAfter), reconcileBatch)
	if err != nil {
		w.log.Error().Err(err).Msg("list open payments failed")
		metrics.IncJob("payment_reconcile", "failed")
		return ReconcileStats{Errors: 1}
	}

	var resolved, abandoned, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, p := range open {
		p := p
		g.Go(func() error {
			switch w.reconcile(gctx, p, started) {
			case reconcileResolved:
				resolved.Add(1)
			case reconcileAbandoned:
				abandoned.Add(1)
			case reconcileFailed:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := ReconcileStats{
		Checked:   len(open),
		Resolved:  int(resolved.Load()),
		Abandoned: int(abandoned.Load()),
		Errors:    int(failed.Load()),
	}
	if stats.Checked > 0 {
		w.log.Info().
			Int("checked", stats.Checked).
			Int("resolved", stats.Resolved).
			Int("abandoned", stats.Abandoned).
			Int("errors", stats.Errors).
			Dur("took", time.Since(started)).
			Msg("reconcile pass finished")
	}
	status := "ok"
	if stats.Errors > 0 {
		status = "failed"
	}
	metrics.IncJob("payment_reconcile", status)
	return stats
}

type reconcileResult int

const (
	reconcileUnchanged reconcileResult = iota
	reconcileResolved
	reconcileAbandoned
	reconcileFailed
)

func (w *PaymentReconciler) reconcile(ctx context.Context, p *model.Payment, now time.Time) reconcileResult {
	ctx = logging.WithReference(logging.WithCompanyID(ctx, p.CompanyID), p.Reference)
	ctx = logging.WithProvider(ctx, string(p.Provider))
	log := logging.With(ctx, w.log)

	gw, ok := w.gateways[p.Provider]
	if !ok {
		log.Warn().Msg("no gateway configured for open payment")
		return w.abandonIfOld(ctx, p, now)
	}
	ev, err := gw.LookupPayment(ctx, p)
	if err != nil {
		log.Warn().Err(err).Msg("provider lookup failed")
		return reconcileFailed
	}
	if ev == nil {
		return w.abandonIfOld(ctx, p, now)
	}
	if ev.Reference == "" {
		ev.Reference = p.Reference
	}

	res, err := w.webhooks.HandleEvent(ctx, ev)
	if err != nil {
		log.Error().Err(err).Msg("apply provider state failed")
		return reconcileFailed
	}
	metrics.RecordWebhookOutcome(res)
	switch res.Outcome {
	case usecase.OutcomeCompleted, usecase.OutcomeFailed, usecase.OutcomeCanceled:
		log.Info().Str("outcome", string(res.Outcome)).Msg("payment reconciled")
		return reconcileResolved
	case usecase.OutcomeError:
		return reconcileFailed
	}
	return reconcileUnchanged
}

func (w *PaymentReconciler) abandonIfOld(ctx context.Context, p *model.Payment, now time.Time) reconcileResult {
	if now.Sub(p.CreatedAt) < w.abandonAfter {
		return reconcileUnchanged
	}
	status := model.PaymentStatusCanceled
	reason := abandonedReason
	changed, err := w.payments.TransitionIfOpen(ctx, repository.NoTX, p.Reference, model.PaymentPatch{
		Status:        &status,
		FailureReason: &reason,
		FailedAt:      &now,
		Metadata:      map[string]any{"canceled_by": "reconciler"},
	})
	if err != nil {
		logging.With(ctx, w.log).Error().Err(err).Msg("abandon payment failed")
		return reconcileFailed
	}
	if !changed {
		return reconcileUnchanged
	}
	metrics.IncPayment(string(p.Provider), string(status))
	logging.With(ctx, w.log).Info().Dur("age", now.Sub(p.CreatedAt)).Msg("payment abandoned")
	return reconcileAbandoned
}
