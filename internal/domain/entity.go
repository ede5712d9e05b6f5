package domain

// EntityType names a record category, e.g. "account".
type EntityType string

// ID is a backend-assigned identity. The zero value means "not persisted yet".
type ID int64

// Field names a foreign-key field on a record.
type Field string

// Record is an identity-bearing entity instance. Implementations are pointer
// types; the unit of work keeps references and never copies them.
type Record interface {
	EntityType() EntityType
	RecordID() ID
	SetRecordID(id ID)
	// Reference returns the current value of a foreign-key field.
	Reference(f Field) (ID, error)
	// SetReference assigns a foreign-key field.
	SetReference(f Field, id ID) error
	// Columns returns the persisted column names and values, identity excluded.
	Columns() ([]string, []any)
}

// IsNew reports whether r has no identity yet.
func IsNew(r Record) bool { return r.RecordID() == 0 }
