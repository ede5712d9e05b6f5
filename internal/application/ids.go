package application

import "github.com/google/uuid"

// IDGen produces unique identifiers.
type IDGen interface {
	NewID() string
}

type defaultIDGen struct{}

func (defaultIDGen) NewID() string { return uuid.NewString() }
