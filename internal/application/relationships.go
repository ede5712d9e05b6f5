package application

import (
	"fmt"

	"uow-service/internal/domain"
)

// link is a deferred foreign-key assignment: child.field = parent identity.
type link struct {
	child  Staged
	field  domain.Field
	parent domain.Record
}

// relationshipLedger holds the links whose child belongs to one entity type,
// in registration order.
type relationshipLedger struct {
	links []link
}

func (l *relationshipLedger) add(child Staged, field domain.Field, parent domain.Record) {
	l.links = append(l.links, link{child: child, field: field, parent: parent})
}

func (l *relationshipLedger) len() int { return len(l.links) }

// assignment is a foreign-key value overwritten during resolution.
type assignment struct {
	rec   domain.Record
	field domain.Field
	prev  domain.ID
}

// assign sets lk's child field to id and appends the old value to undo.
func (lk link) assign(id domain.ID, undo *[]assignment) error {
	prev, err := lk.child.Record.Reference(lk.field)
	if err != nil {
		return fmt.Errorf("resolve %s.%s: %w", lk.child.Record.EntityType(), lk.field, err)
	}
	if prev == id {
		return nil
	}
	if err := lk.child.Record.SetReference(lk.field, id); err != nil {
		return fmt.Errorf("resolve %s.%s: %w", lk.child.Record.EntityType(), lk.field, err)
	}
	*undo = append(*undo, assignment{rec: lk.child.Record, field: lk.field, prev: prev})
	return nil
}

// resolve assigns every link. Every parent must already have an identity.
func (l *relationshipLedger) resolve(undo *[]assignment) error {
	for _, lk := range l.links {
		id := lk.parent.RecordID()
		if id == 0 {
			return fmt.Errorf("%w: %s.%s of %s", ErrUnresolvedParent, lk.child.Record.EntityType(), lk.field, lk.child.Ref)
		}
		if err := lk.assign(id, undo); err != nil {
			return err
		}
	}
	return nil
}

// resolveAllowPartial assigns the links whose parent has an identity and
// returns the children of those that do not, each at most once. Assignment
// errors are not absorbed.
func (l *relationshipLedger) resolveAllowPartial(undo *[]assignment) ([]Ref, error) {
	var failed []Ref
	seen := make(map[Ref]bool)
	for _, lk := range l.links {
		id := lk.parent.RecordID()
		if id == 0 {
			if !seen[lk.child.Ref] {
				seen[lk.child.Ref] = true
				failed = append(failed, lk.child.Ref)
			}
			continue
		}
		if err := lk.assign(id, undo); err != nil {
			return nil, err
		}
	}
	return failed, nil
}
