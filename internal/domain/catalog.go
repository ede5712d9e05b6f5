package domain

import "fmt"

// Descriptor is the metadata the catalog keeps for one entity type.
type Descriptor struct {
	Type        EntityType
	DisplayName string
	Table       string
	References  map[Field]EntityType
	New         func() Record
}

// Catalog is the schema registry for the entity types this service persists.
// The registration order is the dependency order.
type Catalog struct {
	order  []EntityType
	byType map[EntityType]Descriptor
}

func NewCatalog(descs ...Descriptor) *Catalog {
	c := &Catalog{byType: make(map[EntityType]Descriptor, len(descs))}
	for _, d := range descs {
		if _, dup := c.byType[d.Type]; dup {
			continue
		}
		c.order = append(c.order, d.Type)
		c.byType[d.Type] = d
	}
	return c
}

// DefaultCatalog returns account, contact, opportunity in dependency order.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Descriptor{
			Type:        TypeAccount,
			DisplayName: "Account",
			Table:       "accounts",
			New:         func() Record { return &Account{} },
		},
		Descriptor{
			Type:        TypeContact,
			DisplayName: "Contact",
			Table:       "contacts",
			References:  map[Field]EntityType{FieldAccountID: TypeAccount},
			New:         func() Record { return &Contact{} },
		},
		Descriptor{
			Type:        TypeOpportunity,
			DisplayName: "Opportunity",
			Table:       "opportunities",
			References: map[Field]EntityType{
				FieldAccountID: TypeAccount,
				FieldContactID: TypeContact,
			},
			New: func() Record { return &Opportunity{} },
		},
	)
}

func (c *Catalog) Order() []EntityType {
	out := make([]EntityType, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Catalog) Descriptor(t EntityType) (Descriptor, bool) {
	d, ok := c.byType[t]
	return d, ok
}

func (c *Catalog) TypeOf(r Record) (EntityType, bool) {
	if r == nil {
		return "", false
	}
	t := r.EntityType()
	_, ok := c.byType[t]
	return t, ok
}

func (c *Catalog) DisplayName(t EntityType) string {
	if d, ok := c.byType[t]; ok && d.DisplayName != "" {
		return d.DisplayName
	}
	return string(t)
}

// NewRecord materialises a record of type t from decoded JSON fields.
func (c *Catalog) NewRecord(t EntityType, id ID, fields map[string]any) (Record, error) {
	d, ok := c.byType[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	r := d.New()
	r.SetRecordID(id)
	if err := c.Apply(r, fields); err != nil {
		return nil, err
	}
	return r, nil
}

// Apply overwrites the fields of r named in fields; the rest keep their values.
func (c *Catalog) Apply(r Record, fields map[string]any) error {
	if a, ok := r.(interface{ apply(map[string]any) error }); ok {
		if err := a.apply(fields); err != nil {
			return fmt.Errorf("%s: %w", r.EntityType(), err)
		}
	}
	return nil
}
