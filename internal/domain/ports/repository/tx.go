package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes fn within a database transaction and passes
// the underlying transaction handle as tx.
//
// Repositories that receive a tx detect it on the implementation side and
// run SELECT ... FOR UPDATE / tx-bound Exec/Query. They MUST accept a nil tx
// (non-transactional path).
//
// USAGE
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		p, err := payments.FindByReference(ctx, tx, ref)
//		...
//		return err
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
