package repository

import (
	"context"
	"time"

	"finkargo-billing/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	// Insert stores a new payment. Duplicate references return domain.ErrAlreadyExists,
	// unknown companies domain.ErrCompanyNotFound.
	Insert(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	// FindByReference locks the row when called inside a transaction.
	FindByReference(ctx context.Context, tx Tx, reference string) (*model.Payment, error)
	// UpdateByReference applies patch and returns the stored row; domain.ErrNotFound when no row matches.
	UpdateByReference(ctx context.Context, tx Tx, reference string, patch model.PaymentPatch) (*model.Payment, error)
	// TransitionIfOpen applies patch only while the current status is not terminal.
	// It reports whether a row was changed.
	TransitionIfOpen(ctx context.Context, tx Tx, reference string, patch model.PaymentPatch) (bool, error)
	LinkSubscription(ctx context.Context, tx Tx, paymentID, subscriptionID string) error
	FindRecentOpen(ctx context.Context, tx Tx, companyID string, plan model.PlanType, provider model.PaymentProvider, since time.Time) (*model.Payment, error)
	ListOpenOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
}
