package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"uow-service/internal/domain"
)

type bulkFunc func(ctx context.Context, t domain.EntityType, recs []Staged, allowPartial bool) ([]Result, error)

// commitRun is the state of one commit call.
type commitRun struct {
	u   *UnitOfWork
	log *zap.Logger
	// inserted are records that received an identity during this call; they
	// lose it again if the call rolls back.
	inserted []domain.Record
	// assigned are the foreign keys resolution overwrote, restored on rollback.
	assigned []assignment
}

// Commit persists everything staged, all or nothing. On any failure the
// savepoint is rolled back, inserted records lose their identities, resolved
// foreign keys get their previous values back, and the error is returned as
// raised.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	run, sp, err := u.begin(ctx, "atomic")
	if err != nil {
		return err
	}
	if err := run.atomic(ctx); err != nil {
		return run.abort(ctx, sp, err)
	}
	return run.finish(ctx, sp, nil)
}

// CommitAllowPartialSuccess persists what it can. Inserts and updates that
// the backend rejects, and records that depend on them, are reported in the
// returned ledger instead of failing the commit. Deletes stay all or nothing:
// a failed delete rolls back the whole commit. An empty ledger means every
// staged record persisted.
func (u *UnitOfWork) CommitAllowPartialSuccess(ctx context.Context) (FailureLedger, error) {
	run, sp, err := u.begin(ctx, "partial")
	if err != nil {
		return nil, err
	}
	ledger := FailureLedger{}
	if err := run.partial(ctx, ledger); err != nil {
		return nil, run.abort(ctx, sp, err)
	}
	if err := run.finish(ctx, sp, ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (u *UnitOfWork) begin(ctx context.Context, mode string) (*commitRun, Savepoint, error) {
	if u.committed {
		return nil, nil, ErrAlreadyCommitted
	}
	u.committed = true
	run := &commitRun{u: u, log: u.log.With(zap.String("mode", mode))}
	run.log.Info("uow.commit_start",
		zap.Int("inserts", u.count(func(s *typeState) []Staged { return s.inserts })),
		zap.Int("updates", u.count(func(s *typeState) []Staged { return s.updates })),
		zap.Int("deletes", u.count(func(s *typeState) []Staged { return s.deletes })),
	)
	sp, err := u.backend.BeginSavepoint(ctx)
	if err != nil {
		run.log.Error("uow.savepoint_failed", zap.Error(err))
		return nil, nil, fmt.Errorf("begin savepoint: %w", err)
	}
	return run, sp, nil
}

func (r *commitRun) atomic(ctx context.Context) error {
	u := r.u
	for _, t := range u.order {
		st := u.states[t]
		if err := st.links.resolve(&r.assigned); err != nil {
			return err
		}
		if err := r.allOrNone(ctx, t, OpInsert, u.backend.Insert, st.inserts); err != nil {
			return err
		}
	}
	for _, t := range u.order {
		if err := r.allOrNone(ctx, t, OpUpdate, u.backend.Update, u.states[t].updates); err != nil {
			return err
		}
	}
	return r.deletes(ctx)
}

func (r *commitRun) partial(ctx context.Context, ledger FailureLedger) error {
	u := r.u
	dependents := make(map[domain.EntityType]map[Ref]bool, len(u.order))
	for _, t := range u.order {
		st := u.states[t]
		failed, err := st.links.resolveAllowPartial(&r.assigned)
		if err != nil {
			return err
		}
		dep := make(map[Ref]bool, len(failed))
		for _, ref := range failed {
			dep[ref] = true
		}
		dependents[t] = dep
		if err := r.tolerant(ctx, t, OpInsert, u.backend.Insert, st.inserts, dep, ledger); err != nil {
			return err
		}
	}
	for _, t := range u.order {
		if err := r.tolerant(ctx, t, OpUpdate, u.backend.Update, u.states[t].updates, dependents[t], ledger); err != nil {
			return err
		}
	}
	return r.deletes(ctx)
}

// deletes runs in reverse dependency order so children go before parents.
func (r *commitRun) deletes(ctx context.Context) error {
	u := r.u
	for i := len(u.order) - 1; i >= 0; i-- {
		t := u.order[i]
		if err := r.allOrNone(ctx, t, OpDelete, u.backend.Delete, u.states[t].deletes); err != nil {
			return err
		}
	}
	return nil
}

func (r *commitRun) allOrNone(ctx context.Context, t domain.EntityType, op Operation, bulk bulkFunc, recs []Staged) error {
	if len(recs) == 0 {
		return nil
	}
	r.log.Debug("uow.bulk_"+string(op), zap.String("type", string(t)), zap.Int("count", len(recs)))
	results, err := bulk(ctx, t, recs, false)
	if op == OpInsert {
		r.trackInserted(recs)
	}
	if err != nil {
		return err
	}
	for _, res := range results {
		if !res.Success {
			return &PersistenceError{Type: t, Op: op, Ref: res.Ref, Errors: res.Errors}
		}
	}
	return nil
}

func (r *commitRun) tolerant(ctx context.Context, t domain.EntityType, op Operation, bulk bulkFunc, recs []Staged, dep map[Ref]bool, ledger FailureLedger) error {
	display := r.u.schema.DisplayName(t)
	pending := make([]Staged, 0, len(recs))
	for _, s := range recs {
		if dep[s.Ref] {
			ledger.addDependency(s, t, display, op)
			continue
		}
		pending = append(pending, s)
	}
	if len(pending) == 0 {
		return nil
	}
	r.log.Debug("uow.bulk_"+string(op),
		zap.String("type", string(t)),
		zap.Int("count", len(pending)),
		zap.Int("skipped", len(recs)-len(pending)),
	)
	results, err := bulk(ctx, t, pending, true)
	if err != nil {
		return err
	}
	byRef := make(map[Ref]Result, len(results))
	for _, res := range results {
		byRef[res.Ref] = res
	}
	for _, s := range pending {
		res, ok := byRef[s.Ref]
		switch {
		case !ok:
			ledger.addPersistence(s, t, display, op, []RecordError{{Message: "no result reported by backend"}})
			if op == OpInsert {
				s.Record.SetRecordID(0)
			}
		case !res.Success:
			ledger.addPersistence(s, t, display, op, res.Errors)
			if op == OpInsert {
				// children of a failed insert must see no identity
				s.Record.SetRecordID(0)
			}
		case op == OpInsert:
			r.trackInserted([]Staged{s})
		}
	}
	return nil
}

func (r *commitRun) trackInserted(recs []Staged) {
	for _, s := range recs {
		if !domain.IsNew(s.Record) {
			r.inserted = append(r.inserted, s.Record)
		}
	}
}

func (r *commitRun) resetIdentities() {
	for _, rec := range r.inserted {
		rec.SetRecordID(0)
	}
	r.inserted = nil
	for i := len(r.assigned) - 1; i >= 0; i-- {
		a := r.assigned[i]
		if err := a.rec.SetReference(a.field, a.prev); err != nil {
			r.log.Warn("uow.restore_reference_failed", zap.String("field", string(a.field)), zap.Error(err))
		}
	}
	r.assigned = nil
}

func (r *commitRun) abort(ctx context.Context, sp Savepoint, cause error) error {
	r.resetIdentities()
	if err := r.u.backend.Rollback(ctx, sp); err != nil {
		r.log.Error("uow.rollback_failed", zap.Error(err), zap.NamedError("cause", cause))
		return errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	r.log.Warn("uow.commit_rolled_back", zap.Error(cause))
	return cause
}

func (r *commitRun) finish(ctx context.Context, sp Savepoint, ledger FailureLedger) error {
	if err := r.u.backend.Release(ctx, sp); err != nil {
		r.resetIdentities()
		r.log.Error("uow.release_failed", zap.Error(err))
		return fmt.Errorf("release savepoint: %w", err)
	}
	r.log.Info("uow.commit_done", zap.Int("failures", len(ledger)))
	return nil
}

func (u *UnitOfWork) count(pick func(*typeState) []Staged) int {
	n := 0
	for _, t := range u.order {
		n += len(pick(u.states[t]))
	}
	return n
}
