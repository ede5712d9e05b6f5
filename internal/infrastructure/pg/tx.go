package pg

import (
	"context"
	"errors"

	"uow-service/internal/application"
	"uow-service/internal/infrastructure/logx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var _ application.TxRunner = (*TxRunner)(nil)

type txKey struct{}

func txFromCtx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// TxRunner runs fn inside one database transaction carried in the context.
// Backend savepoints nest inside it. A nested Do reuses the outer transaction.
type TxRunner struct {
	Pool *pgxpool.Pool
}

func (r *TxRunner) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromCtx(ctx) != nil {
		return fn(ctx)
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logx.WithFields(ctx).Error("tx.rollback_failed", zap.Error(rbErr), zap.NamedError("cause", err))
		}
		return err
	}
	return tx.Commit(ctx)
}
