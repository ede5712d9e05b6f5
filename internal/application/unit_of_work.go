package application

import (
	"fmt"

	"go.uber.org/zap"

	"uow-service/internal/domain"
)

// UnitOfWork stages inserts, updates and deletes across several entity types
// and commits them in dependency order inside one savepoint.
//
// A UnitOfWork belongs to a single goroutine and commits at most once.
type UnitOfWork struct {
	schema  Schema
	backend Backend
	order   []domain.EntityType
	states  map[domain.EntityType]*typeState
	refs    map[domain.Record]Ref
	stages  map[Ref]stage

	idgen IDGen
	log   *zap.Logger

	committed bool
}

type UoWOption func(*UnitOfWork)

func WithLogger(l *zap.Logger) UoWOption { return func(u *UnitOfWork) { u.log = l } }
func WithRefGen(g IDGen) UoWOption { return func(u *UnitOfWork) { u.idgen = g } }

// NewUnitOfWork builds a unit of work over types, listed least dependent
// first: a type must not reference a type listed after it.
func NewUnitOfWork(schema Schema, backend Backend, types []domain.EntityType, opts ...UoWOption) (*UnitOfWork, error) {
	u := &UnitOfWork{
		schema:  schema,
		backend: backend,
		order:   make([]domain.EntityType, 0, len(types)),
		states:  make(map[domain.EntityType]*typeState, len(types)),
		refs:    make(map[domain.Record]Ref),
		stages:  make(map[Ref]stage),
	}
	for _, t := range types {
		if _, dup := u.states[t]; dup {
			return nil, fmt.Errorf("%w: %s declared twice", ErrUnsupportedType, t)
		}
		u.order = append(u.order, t)
		u.states[t] = &typeState{}
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.idgen == nil {
		u.idgen = defaultIDGen{}
	}
	if u.log == nil {
		u.log = zap.NewNop()
	}
	return u, nil
}

// Types returns the declared types in dependency order.
func (u *UnitOfWork) Types() []domain.EntityType {
	out := make([]domain.EntityType, len(u.order))
	copy(out, u.order)
	return out
}
