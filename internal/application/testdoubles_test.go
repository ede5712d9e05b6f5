package application

import (
	"context"
	"errors"
	"fmt"

	"uow-service/internal/domain"
)

var errTransport = errors.New("connection reset")

type seqIDGen struct{ n int }

func (g *seqIDGen) NewID() string {
	g.n++
	return fmt.Sprintf("ref-%d", g.n)
}

// bulkCall is one bulk operation as the fake backend received it.
type bulkCall struct {
	op           Operation
	t            domain.EntityType
	refs         []Ref
	allowPartial bool
}

// fakeBackend assigns sequential identities and rejects the records listed
// in reject. failOn makes a whole operation fail with err.
type fakeBackend struct {
	nextID domain.ID
	reject map[domain.Record][]RecordError

	failOn Operation
	err    error

	rollbackErr error

	calls      []bulkCall
	savepoints int
	rollbacks  int
	releases   int
	// lastErr is the exact error value last returned from a bulk call.
	lastErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{nextID: 100, reject: map[domain.Record][]RecordError{}}
}

func (f *fakeBackend) rejectRecord(r domain.Record, msg string) {
	f.reject[r] = []RecordError{{Message: msg, Code: "REJECTED", Fields: []string{"name"}}}
}

func (f *fakeBackend) BeginSavepoint(context.Context) (Savepoint, error) {
	f.savepoints++
	return f.savepoints, nil
}

func (f *fakeBackend) Rollback(context.Context, Savepoint) error {
	f.rollbacks++
	return f.rollbackErr
}

func (f *fakeBackend) Release(context.Context, Savepoint) error {
	f.releases++
	return nil
}

func (f *fakeBackend) Insert(ctx context.Context, t domain.EntityType, recs []Staged, allowPartial bool) ([]Result, error) {
	return f.bulk(OpInsert, t, recs, allowPartial)
}

func (f *fakeBackend) Update(ctx context.Context, t domain.EntityType, recs []Staged, allowPartial bool) ([]Result, error) {
	return f.bulk(OpUpdate, t, recs, allowPartial)
}

func (f *fakeBackend) Delete(ctx context.Context, t domain.EntityType, recs []Staged, allowPartial bool) ([]Result, error) {
	return f.bulk(OpDelete, t, recs, allowPartial)
}

func (f *fakeBackend) bulk(op Operation, t domain.EntityType, recs []Staged, allowPartial bool) ([]Result, error) {
	c := bulkCall{op: op, t: t, allowPartial: allowPartial}
	for _, s := range recs {
		c.refs = append(c.refs, s.Ref)
	}
	f.calls = append(f.calls, c)

	if f.failOn == op && f.err != nil {
		f.lastErr = f.err
		return nil, f.err
	}
	if !allowPartial {
		for _, s := range recs {
			if errs, bad := f.reject[s.Record]; bad {
				f.lastErr = &PersistenceError{Type: t, Op: op, Ref: s.Ref, Errors: errs}
				return nil, f.lastErr
			}
		}
	}
	results := make([]Result, 0, len(recs))
	for _, s := range recs {
		if errs, bad := f.reject[s.Record]; bad {
			results = append(results, Result{Ref: s.Ref, Errors: errs})
			continue
		}
		if op == OpInsert {
			f.nextID++
			s.Record.SetRecordID(f.nextID)
		}
		results = append(results, Result{Ref: s.Ref, Success: true})
	}
	return results, nil
}

// trace renders the calls as "op:type" for order assertions.
func (f *fakeBackend) trace() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = fmt.Sprintf("%s:%s", c.op, c.t)
	}
	return out
}

func allTypes() []domain.EntityType {
	return []domain.EntityType{domain.TypeAccount, domain.TypeContact, domain.TypeOpportunity}
}

func newUoW(b Backend, types ...domain.EntityType) *UnitOfWork {
	if len(types) == 0 {
		types = allTypes()
	}
	u, err := NewUnitOfWork(domain.DefaultCatalog(), b, types, WithRefGen(&seqIDGen{}))
	if err != nil {
		panic(err)
	}
	return u
}
