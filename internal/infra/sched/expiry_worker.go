package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"finkargo-billing/internal/infra/metrics"
	"finkargo-billing/internal/usecase"
)

// ExpiryWorker periodically lapses subscriptions whose period ended and
// refreshes the subscriptions gauge.
type ExpiryWorker struct {
	interval time.Duration
	subUC    usecase.SubscriptionUseCase
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, subUC usecase.SubscriptionUseCase, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		subUC:    subUC,
		log:      &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	// run once on startup so a restart does not delay expiry by a full interval
	w.Tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

func (w *ExpiryWorker) Tick(ctx context.Context) {
	expired, err := w.subUC.ExpireLapsed(ctx)
	if err != nil {
		metrics.IncJob("subscription_expiry", "failed")
		w.log.Error().Err(err).Msg("expiry worker error")
	} else {
		metrics.IncJob("subscription_expiry", "ok")
	}
	for status, n := range expired {
		if n == 0 {
			continue
		}
		metrics.IncSubscriptionsExpired(status, n)
		w.log.Info().Str("status", string(status)).Int("count", n).Msg("lapsed subscriptions moved")
	}

	counts, err := w.subUC.CountByStatus(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("count subscriptions failed")
		return
	}
	metrics.SetSubscriptionsTotal(counts)
}
