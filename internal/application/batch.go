package application

import (
	"fmt"

	"uow-service/internal/domain"
)

// Batch is a client-described business transaction: an ordered list of
// intents committed through one unit of work.
type Batch struct {
	Mode domain.CommitMode `json:"mode,omitempty"`
	Ops  []Op              `json:"ops"`
}

// Op is one intent. Key names the record within the batch so that links and
// results can refer to it.
type Op struct {
	Action Operation         `json:"action"`
	Type   domain.EntityType `json:"type"`
	Key    string            `json:"key,omitempty"`
	ID     domain.ID         `json:"id,omitempty"`
	Fields map[string]any    `json:"fields,omitempty"`
	Links  []OpLink          `json:"links,omitempty"`
}

// OpLink sets Field to the identity of the record keyed Parent once that
// record is persisted. Parent must be declared by an earlier op.
type OpLink struct {
	Field  domain.Field `json:"field"`
	Parent string       `json:"parent"`
}

// stagedBatch maps batch keys to the records registered for them. Ops that
// name the same existing row share one record.
type stagedBatch struct {
	keys     []string
	records  map[string]domain.Record
	actions  map[string]Operation
	existing map[domain.EntityType]map[domain.ID]domain.Record
}

func stageBatch(u *UnitOfWork, catalog *domain.Catalog, b Batch) (*stagedBatch, error) {
	sb := &stagedBatch{
		records:  make(map[string]domain.Record, len(b.Ops)),
		actions:  make(map[string]Operation, len(b.Ops)),
		existing: make(map[domain.EntityType]map[domain.ID]domain.Record),
	}
	for i, op := range b.Ops {
		key := op.Key
		if key == "" {
			key = fmt.Sprintf("#%d", i)
		}
		if _, dup := sb.records[key]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrBadRequest, key)
		}
		rec, err := sb.register(u, catalog, op)
		if err != nil {
			return nil, fmt.Errorf("%w: op %q: %w", ErrBadRequest, key, err)
		}
		sb.keys = append(sb.keys, key)
		sb.records[key] = rec
		sb.actions[key] = op.Action
	}
	return sb, nil
}

func (sb *stagedBatch) register(u *UnitOfWork, catalog *domain.Catalog, op Op) (domain.Record, error) {
	rec, err := sb.record(catalog, op)
	if err != nil {
		return nil, err
	}
	rels := make([]Relation, 0, len(op.Links))
	for _, l := range op.Links {
		parent, ok := sb.records[l.Parent]
		if !ok {
			return nil, fmt.Errorf("link %s: unknown parent %q", l.Field, l.Parent)
		}
		rels = append(rels, Relation{Field: l.Field, Parent: parent})
	}
	switch op.Action {
	case OpInsert:
		err = u.RegisterNew(rec, rels...)
	case OpUpdate:
		if err = u.RegisterDirty(rec); err == nil {
			for _, rel := range rels {
				if err = u.RegisterRelationship(rec, rel.Field, rel.Parent); err != nil {
					break
				}
			}
		}
	case OpDelete:
		if len(rels) > 0 {
			return nil, fmt.Errorf("links are not allowed on delete")
		}
		err = u.RegisterDeleted(rec)
	default:
		return nil, fmt.Errorf("unknown action %q", op.Action)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// record returns the record op acts on. Inserts always get a fresh record;
// updates and deletes reuse the one already staged for the same row so the
// unit of work sees them as one.
func (sb *stagedBatch) record(catalog *domain.Catalog, op Op) (domain.Record, error) {
	if op.Action == OpInsert || op.ID == 0 {
		return catalog.NewRecord(op.Type, 0, op.Fields)
	}
	if rec, ok := sb.existing[op.Type][op.ID]; ok {
		if op.Action == OpUpdate {
			if err := catalog.Apply(rec, op.Fields); err != nil {
				return nil, err
			}
		}
		return rec, nil
	}
	rec, err := catalog.NewRecord(op.Type, op.ID, op.Fields)
	if err != nil {
		return nil, err
	}
	byID, ok := sb.existing[op.Type]
	if !ok {
		byID = make(map[domain.ID]domain.Record)
		sb.existing[op.Type] = byID
	}
	byID[op.ID] = rec
	return rec, nil
}

func (sb *stagedBatch) result(u *UnitOfWork, mode domain.CommitMode, ledger FailureLedger) domain.CommitResult {
	res := domain.CommitResult{
		Mode:     mode,
		Records:  make(map[string]domain.RecordOutcome, len(sb.keys)),
		Failures: map[string]string{},
	}
	for _, key := range sb.keys {
		rec := sb.records[key]
		if ref, ok := u.RefOf(rec); ok {
			if f, failed := ledger[ref]; failed {
				res.Failures[key] = f.Message
				continue
			}
		}
		res.Records[key] = domain.RecordOutcome{
			Type:   rec.EntityType(),
			Action: string(sb.actions[key]),
			ID:     rec.RecordID(),
		}
	}
	return res
}

// keyOf finds the batch key of the record staged under ref.
func (sb *stagedBatch) keyOf(u *UnitOfWork, ref Ref) (string, bool) {
	for _, key := range sb.keys {
		if r, ok := u.RefOf(sb.records[key]); ok && r == ref {
			return key, true
		}
	}
	return "", false
}
