package storage

import (
	"errors"
	"fmt"

	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness or
	// consistency constraint.
	ErrConflict = errors.New("record conflict")
)

// NotFound wraps ErrNotFound with the entity and key.
func NotFound(entity, key string) error {
	return fmt.Errorf("%s %s: %w", entity, key, ErrNotFound)
}

// Conflict wraps ErrConflict with a reason.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// ServiceError translates a store error into the API error taxonomy.
// Errors that are neither not-found nor conflicts are returned unchanged.
func ServiceError(err error, resource, key string) error {
	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return svcerrors.NotFound(resource, key)
	case IsConflict(err):
		se := svcerrors.Conflict(resource + " conflicts with an existing record")
		se.Err = err
		return se
	default:
		return err
	}
}
