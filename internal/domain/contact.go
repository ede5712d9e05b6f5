package domain

const (
	TypeContact EntityType = "contact"

	FieldAccountID Field = "account_id"
)

type Contact struct {
	ID        ID
	AccountID ID
	FirstName string
	LastName  string
	Email     string
}

func (c *Contact) EntityType() EntityType { return TypeContact }
func (c *Contact) RecordID() ID           { return c.ID }
func (c *Contact) SetRecordID(id ID)      { c.ID = id }

func (c *Contact) Reference(f Field) (ID, error) {
	if f == FieldAccountID {
		return c.AccountID, nil
	}
	return 0, unknownField(TypeContact, f)
}

func (c *Contact) SetReference(f Field, id ID) error {
	if f == FieldAccountID {
		c.AccountID = id
		return nil
	}
	return unknownField(TypeContact, f)
}

func (c *Contact) Columns() ([]string, []any) {
	return []string{"account_id", "first_name", "last_name", "email"},
		[]any{nullableID(c.AccountID), c.FirstName, c.LastName, c.Email}
}

func (c *Contact) apply(fields map[string]any) error {
	var err error
	if c.AccountID, err = idField(fields, string(FieldAccountID), c.AccountID); err != nil {
		return err
	}
	if c.FirstName, err = stringField(fields, "first_name", c.FirstName); err != nil {
		return err
	}
	if c.LastName, err = stringField(fields, "last_name", c.LastName); err != nil {
		return err
	}
	c.Email, err = stringField(fields, "email", c.Email)
	return err
}
