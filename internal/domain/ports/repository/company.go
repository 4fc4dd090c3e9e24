package repository

import (
	"context"

	"finkargo-billing/internal/domain/model"
)

type CompanyRepository interface {
	// FindByID locks the row when called inside a transaction.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Company, error)
	SetSubscription(ctx context.Context, tx Tx, companyID, subscriptionID string) error
}
