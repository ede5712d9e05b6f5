package domain

import "errors"

var (
	ErrUnknownType  = errors.New("unknown entity type")
	ErrUnknownField = errors.New("unknown field")
	ErrInvalidValue = errors.New("invalid field value")
)
