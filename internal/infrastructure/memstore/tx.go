package memstore

import (
	"context"
	"sync"

	"uow-service/internal/application"
)

var _ application.TxRunner = (*TxRunner)(nil)

// TxRunner serialises units of work against a Store and wraps each in an
// outer savepoint, so a failing fn leaves no trace.
type TxRunner struct {
	Store *Store
	mu    sync.Mutex
}

func (r *TxRunner) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sp, err := r.Store.BeginSavepoint(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		_ = r.Store.Rollback(ctx, sp)
		return err
	}
	return r.Store.Release(ctx, sp)
}
