// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/repository"
)

var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	GetByCompany(ctx context.Context, companyID string) (*model.Subscription, error)
	// ExpireLapsed moves ACTIVE subscriptions past their period end to PAST_DUE,
	// or CANCELED when they were set to cancel at period end.
	ExpireLapsed(ctx context.Context) (map[model.SubscriptionStatus]int, error)
	CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error)
}

type subscriptionUC struct {
	subs      repository.SubscriptionRepository
	tm        repository.TransactionManager
	batchSize int

	log *zerolog.Logger
	now func() time.Time
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, tm repository.TransactionManager, logger *zerolog.Logger) *subscriptionUC {
	return &subscriptionUC{subs: subs, tm: tm, batchSize: 200, log: logger, now: time.Now}
}

func (uc *subscriptionUC) GetByCompany(ctx context.Context, companyID string) (*model.Subscription, error) {
	return uc.subs.FindByCompany(ctx, repository.NoTX, companyID)
}

func (uc *subscriptionUC) ExpireLapsed(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	out := map[model.SubscriptionStatus]int{}
	now := uc.now()
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for k := range out {
			delete(out, k)
		}
		lapsed, err := uc.subs.ListLapsed(ctx, tx, now, uc.batchSize)
		if err != nil {
			return err
		}
		for _, s := range lapsed {
			if !s.Lapse(now) {
				continue
			}
			if err := uc.subs.Update(ctx, tx, s); err != nil {
				return err
			}
			out[s.Status]++
			uc.log.Info().
				Str("company_id", s.CompanyID).
				Str("subscription_id", s.ID).
				Str("status", string(s.Status)).
				Time("period_end", s.CurrentPeriodEnd).
				Msg("subscription lapsed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (uc *subscriptionUC) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return uc.subs.CountByStatus(ctx, repository.NoTX)
}
