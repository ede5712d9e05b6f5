package domain

const TypeAccount EntityType = "account"

type Account struct {
	ID       ID
	Name     string
	Industry string
}

func (a *Account) EntityType() EntityType { return TypeAccount }
func (a *Account) RecordID() ID           { return a.ID }
func (a *Account) SetRecordID(id ID)      { a.ID = id }

func (a *Account) Reference(f Field) (ID, error) {
	return 0, unknownField(TypeAccount, f)
}

func (a *Account) SetReference(f Field, _ ID) error {
	return unknownField(TypeAccount, f)
}

func (a *Account) Columns() ([]string, []any) {
	return []string{"name", "industry"}, []any{a.Name, a.Industry}
}

func (a *Account) apply(fields map[string]any) error {
	var err error
	if a.Name, err = stringField(fields, "name", a.Name); err != nil {
		return err
	}
	a.Industry, err = stringField(fields, "industry", a.Industry)
	return err
}
