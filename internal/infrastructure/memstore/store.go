// Package memstore is an in-memory persistence backend with foreign-key and
// uniqueness checks and nested savepoints. It backs STORAGE=memory and the
// commit engine tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"uow-service/internal/application"
	"uow-service/internal/domain"
)

var _ application.Backend = (*Store)(nil)

var ErrBadSavepoint = errors.New("unknown savepoint")

const (
	CodeRequired   = "REQUIRED_FIELD_MISSING"
	CodeDuplicate  = "DUPLICATE_VALUE"
	CodeForeignKey = "FIELD_INTEGRITY_EXCEPTION"
	CodeReferenced = "DELETE_FAILED"
	CodeNotFound   = "ENTITY_IS_DELETED"
)

type row map[string]any

type state struct {
	tables map[domain.EntityType]map[domain.ID]row
	seq    map[domain.EntityType]domain.ID
}

func (s state) clone() state {
	out := state{
		tables: make(map[domain.EntityType]map[domain.ID]row, len(s.tables)),
		seq:    make(map[domain.EntityType]domain.ID, len(s.seq)),
	}
	for t, rows := range s.tables {
		cp := make(map[domain.ID]row, len(rows))
		for id, r := range rows {
			rr := make(row, len(r))
			for k, v := range r {
				rr[k] = v
			}
			cp[id] = rr
		}
		out.tables[t] = cp
	}
	for t, n := range s.seq {
		out.seq[t] = n
	}
	return out
}

// Call records one bulk operation as it reached the store.
type Call struct {
	Op           application.Operation
	Type         domain.EntityType
	Refs         []application.Ref
	AllowPartial bool
}

type savepoint struct{ depth int }

// Store keeps one table per catalog type.
type Store struct {
	catalog *domain.Catalog

	mu    sync.Mutex
	cur   state
	saved []state
	calls []Call

	// Reject, when set, is consulted before every record write; a non-nil
	// result fails that record.
	Reject func(op application.Operation, t domain.EntityType, r domain.Record) *application.RecordError
}

func New(catalog *domain.Catalog) *Store {
	s := &Store{catalog: catalog}
	s.cur = state{
		tables: make(map[domain.EntityType]map[domain.ID]row),
		seq:    make(map[domain.EntityType]domain.ID),
	}
	for _, t := range catalog.Order() {
		s.cur.tables[t] = make(map[domain.ID]row)
	}
	return s
}

func (s *Store) BeginSavepoint(context.Context) (application.Savepoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, s.cur.clone())
	return savepoint{depth: len(s.saved)}, nil
}

func (s *Store) Rollback(_ context.Context, sp application.Savepoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.depth(sp)
	if err != nil {
		return err
	}
	s.cur = s.saved[d-1]
	s.saved = s.saved[:d-1]
	return nil
}

func (s *Store) Release(_ context.Context, sp application.Savepoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.depth(sp)
	if err != nil {
		return err
	}
	s.saved = s.saved[:d-1]
	return nil
}

func (s *Store) depth(sp application.Savepoint) (int, error) {
	p, ok := sp.(savepoint)
	if !ok || p.depth < 1 || p.depth > len(s.saved) {
		return 0, ErrBadSavepoint
	}
	return p.depth, nil
}

func (s *Store) Insert(_ context.Context, t domain.EntityType, recs []application.Staged, allowPartial bool) ([]application.Result, error) {
	return s.apply(application.OpInsert, t, recs, allowPartial, s.insertOne)
}

func (s *Store) Update(_ context.Context, t domain.EntityType, recs []application.Staged, allowPartial bool) ([]application.Result, error) {
	return s.apply(application.OpUpdate, t, recs, allowPartial, s.updateOne)
}

func (s *Store) Delete(_ context.Context, t domain.EntityType, recs []application.Staged, allowPartial bool) ([]application.Result, error) {
	return s.apply(application.OpDelete, t, recs, allowPartial, s.deleteOne)
}

type writeFunc func(t domain.EntityType, r domain.Record) (domain.ID, *application.RecordError)

func (s *Store) apply(op application.Operation, t domain.EntityType, recs []application.Staged, allowPartial bool, write writeFunc) ([]application.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := Call{Op: op, Type: t, AllowPartial: allowPartial}
	for _, st := range recs {
		call.Refs = append(call.Refs, st.Ref)
	}
	s.calls = append(s.calls, call)

	if _, ok := s.cur.tables[t]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownType, t)
	}
	before := s.cur.clone()
	results := make([]application.Result, 0, len(recs))
	ids := make([]domain.ID, len(recs))
	for i, st := range recs {
		var rerr *application.RecordError
		if s.Reject != nil {
			rerr = s.Reject(op, t, st.Record)
		}
		if rerr == nil {
			ids[i], rerr = write(t, st.Record)
		}
		if rerr != nil {
			if !allowPartial {
				s.cur = before
				return nil, &application.PersistenceError{Type: t, Op: op, Ref: st.Ref, Errors: []application.RecordError{*rerr}}
			}
			results = append(results, application.Result{Ref: st.Ref, Errors: []application.RecordError{*rerr}})
			continue
		}
		results = append(results, application.Result{Ref: st.Ref, Success: true})
	}
	if op == application.OpInsert {
		for i, st := range recs {
			if results[i].Success {
				st.Record.SetRecordID(ids[i])
			}
		}
	}
	return results, nil
}

func (s *Store) insertOne(t domain.EntityType, r domain.Record) (domain.ID, *application.RecordError) {
	if !domain.IsNew(r) {
		return 0, &application.RecordError{Message: "cannot specify id in an insert call", Code: "INVALID_FIELD_FOR_INSERT_UPDATE", Fields: []string{"id"}}
	}
	rw := toRow(r)
	if rerr := s.check(t, 0, rw); rerr != nil {
		return 0, rerr
	}
	s.cur.seq[t]++
	id := s.cur.seq[t]
	s.cur.tables[t][id] = rw
	return id, nil
}

func (s *Store) updateOne(t domain.EntityType, r domain.Record) (domain.ID, *application.RecordError) {
	id := r.RecordID()
	if _, ok := s.cur.tables[t][id]; !ok {
		return 0, &application.RecordError{Message: fmt.Sprintf("%s %d does not exist", t, id), Code: CodeNotFound}
	}
	rw := toRow(r)
	if rerr := s.check(t, id, rw); rerr != nil {
		return 0, rerr
	}
	s.cur.tables[t][id] = rw
	return id, nil
}

func (s *Store) deleteOne(t domain.EntityType, r domain.Record) (domain.ID, *application.RecordError) {
	id := r.RecordID()
	if _, ok := s.cur.tables[t][id]; !ok {
		return 0, &application.RecordError{Message: fmt.Sprintf("%s %d does not exist", t, id), Code: CodeNotFound}
	}
	for _, other := range s.catalog.Order() {
		d, _ := s.catalog.Descriptor(other)
		for f, target := range d.References {
			if target != t {
				continue
			}
			for _, rw := range s.cur.tables[other] {
				if ref, ok := rw[string(f)].(int64); ok && domain.ID(ref) == id {
					return 0, &application.RecordError{
						Message: fmt.Sprintf("%s %d is referenced by %s", t, id, other),
						Code:    CodeReferenced,
						Fields:  []string{string(f)},
					}
				}
			}
		}
	}
	delete(s.cur.tables[t], id)
	return id, nil
}

// check enforces the constraints of the example schema: required names,
// unique account names and existing foreign-key targets.
func (s *Store) check(t domain.EntityType, self domain.ID, rw row) *application.RecordError {
	required := map[domain.EntityType]string{
		domain.TypeAccount:     "name",
		domain.TypeContact:     "last_name",
		domain.TypeOpportunity: "name",
	}
	if col, ok := required[t]; ok {
		if v, _ := rw[col].(string); v == "" {
			return &application.RecordError{Message: "required field missing", Code: CodeRequired, Fields: []string{col}}
		}
	}
	if t == domain.TypeAccount {
		for id, other := range s.cur.tables[t] {
			if id != self && other["name"] == rw["name"] {
				return &application.RecordError{Message: "duplicate value found", Code: CodeDuplicate, Fields: []string{"name"}}
			}
		}
	}
	d, _ := s.catalog.Descriptor(t)
	for f, target := range d.References {
		ref, ok := rw[string(f)].(int64)
		if !ok {
			continue
		}
		if _, exists := s.cur.tables[target][domain.ID(ref)]; !exists {
			return &application.RecordError{
				Message: fmt.Sprintf("%s %d does not exist", target, ref),
				Code:    CodeForeignKey,
				Fields:  []string{string(f)},
			}
		}
	}
	return nil
}

func toRow(r domain.Record) row {
	cols, vals := r.Columns()
	rw := make(row, len(cols))
	for i, c := range cols {
		rw[c] = vals[i]
	}
	return rw
}

// Calls returns the bulk operations received so far, in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Get returns the stored columns of one row.
func (s *Store) Get(t domain.EntityType, id domain.ID) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rw, ok := s.cur.tables[t][id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(rw))
	for k, v := range rw {
		out[k] = v
	}
	return out, true
}

// Count returns the number of rows of type t.
func (s *Store) Count(t domain.EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cur.tables[t])
}

// Seed inserts r directly, bypassing savepoints, and assigns its identity.
func (s *Store) Seed(r domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := r.EntityType()
	if _, ok := s.cur.tables[t]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownType, t)
	}
	id, rerr := s.insertOne(t, r)
	if rerr != nil {
		return errors.New(rerr.String())
	}
	r.SetRecordID(id)
	return nil
}
