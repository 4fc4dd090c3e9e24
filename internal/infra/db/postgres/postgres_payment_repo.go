package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

const paymentColumns = `id, company_id, reference, amount, currency, status, provider, provider_payment_id, payment_method,
  plan_type, billing_cycle, customer_email, description, paid_at, failed_at, failure_reason, metadata, subscription_id,
  created_at, updated_at`

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

func (r *paymentRepo) Insert(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20);`

	meta := p.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.CompanyID, p.Reference, p.Amount, p.Currency, string(p.Status), string(p.Provider),
		p.ProviderPaymentID, p.PaymentMethod, string(p.PlanType), string(p.BillingCycle), p.CustomerEmail,
		p.Description, p.PaidAt, p.FailedAt, p.FailureReason, meta, p.SubscriptionID, p.CreatedAt, p.UpdatedAt)
	return mapWriteErr(err)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", id)
}

func (r *paymentRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE reference=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", reference)
}

const patchSet = `
   SET status              = COALESCE($2, status),
       provider_payment_id = COALESCE($3, provider_payment_id),
       payment_method      = COALESCE($4, payment_method),
       failure_reason      = COALESCE($5, failure_reason),
       failed_at           = COALESCE($6, failed_at),
       paid_at             = COALESCE($7, paid_at),
       metadata            = metadata || COALESCE($8::jsonb, '{}'::jsonb),
       updated_at          = NOW()`

func patchArgs(reference string, patch model.PaymentPatch) []any {
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	var meta any
	if len(patch.Metadata) > 0 {
		meta = patch.Metadata
	}
	return []any{reference, status, patch.ProviderPaymentID, patch.PaymentMethod, patch.FailureReason, patch.FailedAt, patch.PaidAt, meta}
}

func (r *paymentRepo) UpdateByReference(ctx context.Context, tx repository.Tx, reference string, patch model.PaymentPatch) (*model.Payment, error) {
	q := `UPDATE payments` + patchSet + `
 WHERE reference = $1
RETURNING ` + paymentColumns + `;`
	return r.queryOne(ctx, tx, q, patchArgs(reference, patch)...)
}

// TransitionIfOpen atomically applies patch only while the payment is PENDING or PROCESSING.
func (r *paymentRepo) TransitionIfOpen(ctx context.Context, tx repository.Tx, reference string, patch model.PaymentPatch) (bool, error) {
	q := `UPDATE payments` + patchSet + `
 WHERE reference = $1
   AND status IN ('PENDING','PROCESSING');`
	cmd, err := execSQL(ctx, r.pool, tx, q, patchArgs(reference, patch)...)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) LinkSubscription(ctx context.Context, tx repository.Tx, paymentID, subscriptionID string) error {
	const q = `UPDATE payments SET subscription_id=$2, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, paymentID, subscriptionID)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentRepo) FindRecentOpen(ctx context.Context, tx repository.Tx, companyID string, plan model.PlanType, provider model.PaymentProvider, since time.Time) (*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + `
  FROM payments
 WHERE company_id=$1 AND plan_type=$2 AND provider=$3
   AND status IN ('PENDING','PROCESSING')
   AND created_at >= $4
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, companyID, string(plan), string(provider), since)
}

func (r *paymentRepo) ListOpenOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + `
  FROM payments
 WHERE status IN ('PENDING','PROCESSING') AND created_at < $1
 ORDER BY created_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, mapReadErr(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *paymentRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	var status, provider, plan, cycle string
	if err := row.Scan(&p.ID, &p.CompanyID, &p.Reference, &p.Amount, &p.Currency, &status, &provider,
		&p.ProviderPaymentID, &p.PaymentMethod, &plan, &cycle, &p.CustomerEmail, &p.Description,
		&p.PaidAt, &p.FailedAt, &p.FailureReason, &p.Metadata, &p.SubscriptionID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	p.Provider = model.PaymentProvider(provider)
	p.PlanType = model.PlanType(plan)
	p.BillingCycle = model.BillingCycle(cycle)
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	return p, nil
}
