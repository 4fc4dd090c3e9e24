package repository

import (
	"context"
	"time"

	"finkargo-billing/internal/domain/model"
)

// SubscriptionRepository is the port for company subscriptions (one per company).
type SubscriptionRepository interface {
	// FindByCompany locks the row when called inside a transaction.
	FindByCompany(ctx context.Context, tx Tx, companyID string) (*model.Subscription, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// Insert returns domain.ErrAlreadyExists when the company already has one.
	Insert(ctx context.Context, tx Tx, s *model.Subscription) error
	Update(ctx context.Context, tx Tx, s *model.Subscription) error
	ListLapsed(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subscription, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
