package application

import (
	"fmt"

	"uow-service/internal/domain"
)

// FailureKind classifies a failure recorded during a partial commit.
type FailureKind string

const (
	// DependencyFailure: the record was not sent to the backend because a
	// record it references failed earlier in the same commit.
	DependencyFailure FailureKind = "dependency"
	// PersistenceFailure: the backend rejected the record.
	PersistenceFailure FailureKind = "persistence"
)

const dependencyFailureMessage = "dependent on a related record that failed earlier"

type Failure struct {
	Ref     Ref
	Record  domain.Record
	Type    domain.EntityType
	Op      Operation
	Kind    FailureKind
	Message string
}

// FailureLedger maps the Ref of every record that did not persist during a
// partial commit to why.
type FailureLedger map[Ref]Failure

func (l FailureLedger) addDependency(s Staged, t domain.EntityType, display string, op Operation) {
	l[s.Ref] = Failure{
		Ref:     s.Ref,
		Record:  s.Record,
		Type:    t,
		Op:      op,
		Kind:    DependencyFailure,
		Message: fmt.Sprintf("%s %s skipped: %s", display, op, dependencyFailureMessage),
	}
}

func (l FailureLedger) addPersistence(s Staged, t domain.EntityType, display string, op Operation, errs []RecordError) {
	l[s.Ref] = Failure{
		Ref:     s.Ref,
		Record:  s.Record,
		Type:    t,
		Op:      op,
		Kind:    PersistenceFailure,
		Message: fmt.Sprintf("%s %s failed: %s", display, op, joinRecordErrors(errs)),
	}
}

// Messages flattens the ledger to Ref -> description.
func (l FailureLedger) Messages() map[Ref]string {
	out := make(map[Ref]string, len(l))
	for ref, f := range l {
		out[ref] = f.Message
	}
	return out
}
