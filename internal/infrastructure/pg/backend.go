package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"uow-service/internal/application"
	"uow-service/internal/domain"
	"uow-service/internal/infrastructure/logx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var _ application.Backend = (*Backend)(nil)

// ErrNoTx is returned when a savepoint is requested outside a TxRunner.
var ErrNoTx = errors.New("no transaction in context")

// Backend persists catalog records into Postgres. It only works inside a
// transaction started by TxRunner; savepoints are nested pgx transactions.
type Backend struct {
	catalog *domain.Catalog
}

func NewBackend(catalog *domain.Catalog) *Backend { return &Backend{catalog: catalog} }

func (b *Backend) BeginSavepoint(ctx context.Context) (application.Savepoint, error) {
	tx := txFromCtx(ctx)
	if tx == nil {
		return nil, ErrNoTx
	}
	return tx.Begin(ctx)
}

func (b *Backend) Rollback(ctx context.Context, sp application.Savepoint) error {
	tx, ok := sp.(pgx.Tx)
	if !ok {
		return fmt.Errorf("rollback: unexpected savepoint %T", sp)
	}
	return tx.Rollback(ctx)
}

func (b *Backend) Release(ctx context.Context, sp application.Savepoint) error {
	tx, ok := sp.(pgx.Tx)
	if !ok {
		return fmt.Errorf("release: unexpected savepoint %T", sp)
	}
	return tx.Commit(ctx)
}

func (b *Backend) Insert(ctx context.Context, t domain.EntityType, recs []application.Staged, allowPartial bool) ([]application.Result, error) {
	table, err := b.table(t)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, t, application.OpInsert, recs, allowPartial, func(r domain.Record) (string, []any) {
		cols, vals := r.Columns()
		ph := make([]string, len(cols))
		for i := range cols {
			ph[i] = fmt.Sprintf("$%d", i+1)
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
			table, strings.Join(cols, ", "), strings.Join(ph, ", ")), vals
	})
}

func (b *Backend) Update(ctx context.Context, t domain.EntityType, recs []application.Staged, allowPartial bool) ([]application.Result, error) {
	table, err := b.table(t)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, t, application.OpUpdate, recs, allowPartial, func(r domain.Record) (string, []any) {
		cols, vals := r.Columns()
		set := make([]string, len(cols))
		for i, c := range cols {
			set[i] = fmt.Sprintf("%s = $%d", c, i+1)
		}
		args := append(vals, int64(r.RecordID()))
		return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING id",
			table, strings.Join(set, ", "), len(args)), args
	})
}

func (b *Backend) Delete(ctx context.Context, t domain.EntityType, recs []application.Staged, allowPartial bool) ([]application.Result, error) {
	table, err := b.table(t)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, t, application.OpDelete, recs, allowPartial, func(r domain.Record) (string, []any) {
		return fmt.Sprintf("DELETE FROM %s WHERE id = $1 RETURNING id", table), []any{int64(r.RecordID())}
	})
}

func (b *Backend) table(t domain.EntityType) (string, error) {
	d, ok := b.catalog.Descriptor(t)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownType, t)
	}
	return pgx.Identifier{d.Table}.Sanitize(), nil
}

type statementFunc func(r domain.Record) (string, []any)

func (b *Backend) run(ctx context.Context, t domain.EntityType, op application.Operation, recs []application.Staged, allowPartial bool, stmt statementFunc) ([]application.Result, error) {
	tx := txFromCtx(ctx)
	if tx == nil {
		return nil, ErrNoTx
	}
	log := logx.L().With(
		zap.String("repo", "uow_backend"),
		zap.String("operation", string(op)),
		zap.String("type", string(t)),
		zap.Int("count", len(recs)),
		zap.Bool("allow_partial", allowPartial),
	)
	log.Debug("sql.batch_start")
	var (
		results []application.Result
		err     error
	)
	if allowPartial {
		results, err = b.runEach(ctx, tx, t, op, recs, stmt)
	} else {
		results, err = b.runBatch(ctx, tx, t, op, recs, stmt)
	}
	if err != nil {
		log.Error("sql.batch_failed", zap.Error(err))
		return nil, err
	}
	log.Debug("sql.batch_success")
	return results, nil
}

// runBatch sends all statements in one round trip. The first failing record
// fails the call; identities are only assigned once every row succeeded.
func (b *Backend) runBatch(ctx context.Context, tx pgx.Tx, t domain.EntityType, op application.Operation, recs []application.Staged, stmt statementFunc) ([]application.Result, error) {
	batch := &pgx.Batch{}
	for _, s := range recs {
		q, args := stmt(s.Record)
		batch.Queue(q, args...)
	}
	br := tx.SendBatch(ctx, batch)
	ids := make([]int64, len(recs))
	for i, s := range recs {
		if err := br.QueryRow().Scan(&ids[i]); err != nil {
			_ = br.Close()
			rerr, ok := recordError(err, s.Record)
			if !ok {
				return nil, err
			}
			return nil, &application.PersistenceError{Type: t, Op: op, Ref: s.Ref, Errors: []application.RecordError{rerr}}
		}
	}
	if err := br.Close(); err != nil {
		return nil, err
	}
	results := make([]application.Result, len(recs))
	for i, s := range recs {
		if op == application.OpInsert {
			s.Record.SetRecordID(domain.ID(ids[i]))
		}
		results[i] = application.Result{Ref: s.Ref, Success: true}
	}
	return results, nil
}

// runEach isolates every record in its own savepoint so that one rejected row
// does not abort the surrounding transaction.
func (b *Backend) runEach(ctx context.Context, tx pgx.Tx, t domain.EntityType, op application.Operation, recs []application.Staged, stmt statementFunc) ([]application.Result, error) {
	results := make([]application.Result, 0, len(recs))
	for _, s := range recs {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return nil, err
		}
		q, args := stmt(s.Record)
		var id int64
		err = sp.QueryRow(ctx, q, args...).Scan(&id)
		if err != nil {
			if rbErr := sp.Rollback(ctx); rbErr != nil {
				return nil, rbErr
			}
			rerr, ok := recordError(err, s.Record)
			if !ok {
				return nil, err
			}
			results = append(results, application.Result{Ref: s.Ref, Errors: []application.RecordError{rerr}})
			continue
		}
		if err := sp.Commit(ctx); err != nil {
			return nil, err
		}
		if op == application.OpInsert {
			s.Record.SetRecordID(domain.ID(id))
		}
		results = append(results, application.Result{Ref: s.Ref, Success: true})
	}
	return results, nil
}

// recordError turns a row-level database failure into a RecordError. It
// returns false for anything that is not about the row itself.
func recordError(err error, r domain.Record) (application.RecordError, bool) {
	if errors.Is(err, pgx.ErrNoRows) {
		return application.RecordError{
			Message: fmt.Sprintf("%s %d does not exist", r.EntityType(), r.RecordID()),
			Code:    "P0002",
		}, true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return application.RecordError{}, false
	}
	// only data exceptions (22) and integrity violations (23) are row-level
	if len(pgErr.Code) < 2 || (pgErr.Code[:2] != "22" && pgErr.Code[:2] != "23") {
		return application.RecordError{}, false
	}
	re := application.RecordError{Message: pgErr.Message, Code: pgErr.Code}
	switch {
	case pgErr.ColumnName != "":
		re.Fields = []string{pgErr.ColumnName}
	case pgErr.ConstraintName != "":
		re.Fields = []string{pgErr.ConstraintName}
	}
	if pgErr.Detail != "" {
		re.Message += ": " + pgErr.Detail
	}
	return re, true
}
