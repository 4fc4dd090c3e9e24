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

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

const subscriptionColumns = `id, company_id, plan, status, current_period_start, current_period_end, billing_cycle,
  reports_used, reports_limit, canceled_at, cancel_at_period_end, created_at, updated_at`

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Insert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.CompanyID, string(s.Plan), string(s.Status),
		s.CurrentPeriodStart, s.CurrentPeriodEnd, string(s.BillingCycle), s.ReportsUsed, s.ReportsLimit,
		s.CanceledAt, s.CancelAtPeriodEnd, s.CreatedAt, s.UpdatedAt)
	return mapWriteErr(err)
}

func (r *subscriptionRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
UPDATE subscriptions
   SET plan=$2, status=$3, current_period_start=$4, current_period_end=$5, billing_cycle=$6,
       reports_used=$7, reports_limit=$8, canceled_at=$9, cancel_at_period_end=$10, updated_at=$11
 WHERE id=$1;`

	cmd, err := execSQL(ctx, r.pool, tx, q, s.ID, string(s.Plan), string(s.Status),
		s.CurrentPeriodStart, s.CurrentPeriodEnd, string(s.BillingCycle), s.ReportsUsed, s.ReportsLimit,
		s.CanceledAt, s.CancelAtPeriodEnd, s.UpdatedAt)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) FindByCompany(ctx context.Context, tx repository.Tx, companyID string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE company_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", companyID)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", id)
}

// ListLapsed returns ACTIVE subscriptions whose period ended before now.
func (r *subscriptionRepo) ListLapsed(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 200
	}
	q := `SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE status='ACTIVE' AND current_period_end <= $1
 ORDER BY current_period_end ASC
 LIMIT $2`
	if inTx(tx) {
		q += " FOR UPDATE SKIP LOCKED"
	}
	rows, err := queryRows(ctx, r.pool, tx, q+";", now, limit)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, mapReadErr(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return s, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var plan, status, cycle string
	if err := row.Scan(&s.ID, &s.CompanyID, &plan, &status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &cycle,
		&s.ReportsUsed, &s.ReportsLimit, &s.CanceledAt, &s.CancelAtPeriodEnd, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Plan = model.PlanType(plan)
	s.Status = model.SubscriptionStatus(status)
	s.BillingCycle = model.BillingCycle(cycle)
	return s, nil
}
