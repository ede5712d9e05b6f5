package application

import (
	"errors"
	"fmt"
	"strings"

	"uow-service/internal/domain"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")
var ErrBadRequest = errors.New("bad request")

var (
	// ErrUnsupportedType is returned when registering a record whose type was
	// not declared to the unit of work.
	ErrUnsupportedType = errors.New("unsupported entity type")
	// ErrIllegalRegistration is returned when a record's identity state does
	// not fit the registration (new vs existing) or conflicts with an earlier one.
	ErrIllegalRegistration = errors.New("illegal registration")
	ErrAlreadyCommitted    = errors.New("unit of work already committed")
	// ErrUnresolvedParent is returned by strict relationship resolution when a
	// parent record still has no identity.
	ErrUnresolvedParent = errors.New("related record has no identity")
)

// RecordError is one backend-reported problem with a record.
type RecordError struct {
	Message string
	Code    string
	Fields  []string
}

func (e RecordError) String() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Fields, ", "))
	}
	return b.String()
}

// PersistenceError is a per-record failure of an all-or-none bulk operation.
type PersistenceError struct {
	Type   domain.EntityType
	Op     Operation
	Ref    Ref
	Errors []RecordError
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s failed for %s: %s", e.Type, e.Op, e.Ref, joinRecordErrors(e.Errors))
}

// IsPersistenceError reports whether err wraps a *PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func joinRecordErrors(errs []RecordError) string {
	if len(errs) == 0 {
		return "unknown error"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}
