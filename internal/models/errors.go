package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPrompt     = errors.New("prompt must contain at least 3 meaningful characters")
	ErrNotFound          = errors.New("transaction not found")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrStore             = errors.New("store failure")
	ErrConfig            = errors.New("invalid configuration")
)

// ValidationError reports a malformed transaction field
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// StoreError wraps a persistence failure
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// NotFoundf wraps ErrNotFound with detail
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
