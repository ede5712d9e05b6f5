package domain

import (
	"fmt"
	"math"
)

func unknownField(t EntityType, f Field) error {
	return fmt.Errorf("%w: %s.%s", ErrUnknownField, t, f)
}

// nullableID maps the zero identity to SQL NULL.
func nullableID(id ID) any {
	if id == 0 {
		return nil
	}
	return int64(id)
}

func stringField(fields map[string]any, key, def string) (string, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidValue, key)
	}
	return s, nil
}

func floatField(fields map[string]any, key string, def float64) (float64, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidValue, key)
}

func idField(fields map[string]any, key string, def ID) (ID, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n < 0 {
			return 0, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidValue, key)
		}
		return ID(n), nil
	case int:
		return ID(n), nil
	case int64:
		return ID(n), nil
	case ID:
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidValue, key)
}
