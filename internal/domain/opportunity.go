package domain

const (
	TypeOpportunity EntityType = "opportunity"

	FieldContactID Field = "contact_id"
)

type Opportunity struct {
	ID        ID
	AccountID ID
	ContactID ID
	Name      string
	Amount    float64
}

func (o *Opportunity) EntityType() EntityType { return TypeOpportunity }
func (o *Opportunity) RecordID() ID           { return o.ID }
func (o *Opportunity) SetRecordID(id ID)      { o.ID = id }

func (o *Opportunity) Reference(f Field) (ID, error) {
	switch f {
	case FieldAccountID:
		return o.AccountID, nil
	case FieldContactID:
		return o.ContactID, nil
	}
	return 0, unknownField(TypeOpportunity, f)
}

func (o *Opportunity) SetReference(f Field, id ID) error {
	switch f {
	case FieldAccountID:
		o.AccountID = id
	case FieldContactID:
		o.ContactID = id
	default:
		return unknownField(TypeOpportunity, f)
	}
	return nil
}

func (o *Opportunity) Columns() ([]string, []any) {
	return []string{"account_id", "contact_id", "name", "amount"},
		[]any{nullableID(o.AccountID), nullableID(o.ContactID), o.Name, o.Amount}
}

func (o *Opportunity) apply(fields map[string]any) error {
	var err error
	if o.AccountID, err = idField(fields, string(FieldAccountID), o.AccountID); err != nil {
		return err
	}
	if o.ContactID, err = idField(fields, string(FieldContactID), o.ContactID); err != nil {
		return err
	}
	if o.Name, err = stringField(fields, "name", o.Name); err != nil {
		return err
	}
	o.Amount, err = floatField(fields, "amount", o.Amount)
	return err
}
