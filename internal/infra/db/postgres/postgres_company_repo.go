package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/repository"
)

var _ repository.CompanyRepository = (*companyRepo)(nil)

type companyRepo struct{ pool *pgxpool.Pool }

func NewCompanyRepo(pool *pgxpool.Pool) *companyRepo {
	return &companyRepo{pool: pool}
}

func (r *companyRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Company, error) {
	q := `SELECT id, name, country, subscription_id, created_at, updated_at FROM companies WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", id)
	if err != nil {
		return nil, err
	}
	c := &model.Company{}
	if err := row.Scan(&c.ID, &c.Name, &c.Country, &c.SubscriptionID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err = mapReadErr(err); err == domain.ErrNotFound {
			return nil, domain.ErrCompanyNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *companyRepo) SetSubscription(ctx context.Context, tx repository.Tx, companyID, subscriptionID string) error {
	const q = `UPDATE companies SET subscription_id=$2, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, companyID, subscriptionID)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrCompanyNotFound
	}
	return nil
}

// Save upserts a company. Companies are owned by the account service; this is
// used for seeding and tests.
func (r *companyRepo) Save(ctx context.Context, tx repository.Tx, c *model.Company) error {
	const q = `
INSERT INTO companies (id, name, country, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET name=$2, country=$3, updated_at=$5;`
	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Name, c.Country, c.CreatedAt, c.UpdatedAt)
	return mapWriteErr(err)
}
