package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// EntityError tags a store failure with the entity it was reading or writing.
type EntityError struct {
	Entity string
	Err    error
}

func (e *EntityError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Entity, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func entityErr(entity, action string, err error) error {
	if err == nil {
		return nil
	}
	return &EntityError{Entity: entity, Err: fmt.Errorf("%s: %w", action, err)}
}

// EntityOf reports the entity name carried by err, if any.
func EntityOf(err error) string {
	var target *EntityError
	if errors.As(err, &target) {
		return target.Entity
	}
	return ""
}

func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
