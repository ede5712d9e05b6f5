package application

import (
	"context"

	"uow-service/internal/domain"
)

// Ref is the stable surrogate key a unit of work assigns to every record it
// stages. Backend results and failures are matched back by Ref.
type Ref string

// Staged is a record as handed to a backend bulk operation.
type Staged struct {
	Ref    Ref
	Record domain.Record
}

// Operation is the kind of bulk operation.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Result is the per-record outcome of a bulk operation.
type Result struct {
	Ref     Ref
	Success bool
	Errors  []RecordError
}

// Savepoint is an opaque backend handle for an atomic boundary.
type Savepoint any

// Backend is the persistence engine a unit of work commits into.
//
// Insert, Update and Delete with allowPartial=false are all-or-none: a single
// record failure must fail the whole call with a *PersistenceError and leave
// nothing of that call applied. With allowPartial=true they apply what they
// can and report per-record outcomes; a returned error then means the call
// itself failed.
type Backend interface {
	BeginSavepoint(ctx context.Context) (Savepoint, error)
	Rollback(ctx context.Context, sp Savepoint) error
	Release(ctx context.Context, sp Savepoint) error

	Insert(ctx context.Context, t domain.EntityType, recs []Staged, allowPartial bool) ([]Result, error)
	Update(ctx context.Context, t domain.EntityType, recs []Staged, allowPartial bool) ([]Result, error)
	Delete(ctx context.Context, t domain.EntityType, recs []Staged, allowPartial bool) ([]Result, error)
}

// Schema resolves entity type metadata.
type Schema interface {
	TypeOf(r domain.Record) (domain.EntityType, bool)
	DisplayName(t domain.EntityType) string
}

// TxRunner provides a transaction boundary using context propagation.
type TxRunner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoopTx executes the function without starting a transaction.
type NoopTx struct{}

func (NoopTx) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// CommitJobRepo stores batches queued for asynchronous commit.
type CommitJobRepo interface {
	CreateQueued(ctx context.Context, batch Batch) (string, error)
	GetByID(ctx context.Context, id string) (domain.CommitJob, error)
	ClaimQueued(ctx context.Context, limit int) ([]QueuedJob, error)
	Complete(ctx context.Context, id string, status domain.CommitJobStatus, result *domain.CommitResult, errMsg *string) error
}

// QueuedJob is a claimed job together with its payload.
type QueuedJob struct {
	ID    string
	Batch Batch
}

// Worker drains queued commit jobs until ctx is canceled.
type Worker interface {
	Start(ctx context.Context)
}
