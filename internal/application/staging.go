package application

import (
	"fmt"

	"uow-service/internal/domain"
)

type stage uint8

const (
	stagedNew stage = 1 << iota
	stagedDirty
	stagedDeleted
)

// typeState is everything staged for one entity type.
type typeState struct {
	inserts []Staged
	updates []Staged
	deletes []Staged
	links   relationshipLedger
}

func (s *typeState) hasWork() bool {
	return len(s.inserts) > 0 || len(s.updates) > 0 || len(s.deletes) > 0
}

// Relation is an optional parent reference passed to RegisterNew.
type Relation struct {
	Field  domain.Field
	Parent domain.Record
}

// RegisterNew stages a record that has no identity yet for insert. Each
// relation records that r.Field must receive Parent's identity at commit.
func (u *UnitOfWork) RegisterNew(r domain.Record, rels ...Relation) error {
	st, s, err := u.stageFor(r)
	if err != nil {
		return err
	}
	if !domain.IsNew(r) {
		return fmt.Errorf("%w: %s %d already has an identity", ErrIllegalRegistration, r.EntityType(), r.RecordID())
	}
	for _, rel := range rels {
		if rel.Parent == nil {
			return fmt.Errorf("%w: nil parent for %s.%s", ErrIllegalRegistration, r.EntityType(), rel.Field)
		}
	}
	if u.stages[s.Ref]&stagedNew == 0 {
		u.stages[s.Ref] |= stagedNew
		st.inserts = append(st.inserts, s)
	}
	for _, rel := range rels {
		st.links.add(s, rel.Field, rel.Parent)
	}
	return nil
}

// RegisterRelationship records that r.field must receive related's identity
// at commit. Only r's type is checked; related may be of any type.
func (u *UnitOfWork) RegisterRelationship(r domain.Record, field domain.Field, related domain.Record) error {
	st, s, err := u.stageFor(r)
	if err != nil {
		return err
	}
	if related == nil {
		return fmt.Errorf("%w: nil related record for %s.%s", ErrIllegalRegistration, r.EntityType(), field)
	}
	st.links.add(s, field, related)
	return nil
}

// RegisterDirty stages an existing record for update.
func (u *UnitOfWork) RegisterDirty(r domain.Record) error {
	st, s, err := u.stageFor(r)
	if err != nil {
		return err
	}
	if domain.IsNew(r) {
		return fmt.Errorf("%w: new %s cannot be registered dirty", ErrIllegalRegistration, r.EntityType())
	}
	switch cur := u.stages[s.Ref]; {
	case cur&stagedDeleted != 0:
		return fmt.Errorf("%w: %s %d is already registered deleted", ErrIllegalRegistration, r.EntityType(), r.RecordID())
	case cur&stagedDirty != 0:
		return nil
	}
	u.stages[s.Ref] |= stagedDirty
	st.updates = append(st.updates, s)
	return nil
}

// RegisterDeleted stages an existing record for delete.
func (u *UnitOfWork) RegisterDeleted(r domain.Record) error {
	st, s, err := u.stageFor(r)
	if err != nil {
		return err
	}
	if domain.IsNew(r) {
		return fmt.Errorf("%w: new %s cannot be registered deleted", ErrIllegalRegistration, r.EntityType())
	}
	switch cur := u.stages[s.Ref]; {
	case cur&stagedDirty != 0:
		return fmt.Errorf("%w: %s %d is already registered dirty", ErrIllegalRegistration, r.EntityType(), r.RecordID())
	case cur&stagedDeleted != 0:
		return nil
	}
	u.stages[s.Ref] |= stagedDeleted
	st.deletes = append(st.deletes, s)
	return nil
}

// HasWorkToCommit reports whether anything is staged for insert, update or delete.
func (u *UnitOfWork) HasWorkToCommit() bool {
	for _, t := range u.order {
		if u.states[t].hasWork() {
			return true
		}
	}
	return false
}

func (u *UnitOfWork) NewRecords() map[domain.EntityType][]domain.Record {
	return u.snapshot(func(s *typeState) []Staged { return s.inserts })
}

func (u *UnitOfWork) DirtyRecords() map[domain.EntityType][]domain.Record {
	return u.snapshot(func(s *typeState) []Staged { return s.updates })
}

func (u *UnitOfWork) DeletedRecords() map[domain.EntityType][]domain.Record {
	return u.snapshot(func(s *typeState) []Staged { return s.deletes })
}

// RefOf returns the surrogate key assigned to r at registration.
func (u *UnitOfWork) RefOf(r domain.Record) (Ref, bool) {
	ref, ok := u.refs[r]
	return ref, ok
}

func (u *UnitOfWork) snapshot(pick func(*typeState) []Staged) map[domain.EntityType][]domain.Record {
	out := make(map[domain.EntityType][]domain.Record, len(u.order))
	for _, t := range u.order {
		seq := pick(u.states[t])
		recs := make([]domain.Record, len(seq))
		for i, s := range seq {
			recs[i] = s.Record
		}
		out[t] = recs
	}
	return out
}

func (u *UnitOfWork) stageFor(r domain.Record) (*typeState, Staged, error) {
	if u.committed {
		return nil, Staged{}, ErrAlreadyCommitted
	}
	if r == nil {
		return nil, Staged{}, fmt.Errorf("%w: nil record", ErrIllegalRegistration)
	}
	t, ok := u.schema.TypeOf(r)
	if !ok {
		return nil, Staged{}, fmt.Errorf("%w: %s", ErrUnsupportedType, r.EntityType())
	}
	st, ok := u.states[t]
	if !ok {
		return nil, Staged{}, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	ref, ok := u.refs[r]
	if !ok {
		ref = Ref(u.idgen.NewID())
		u.refs[r] = ref
	}
	return st, Staged{Ref: ref, Record: r}, nil
}
