// Package repositories implements the data access layer (repository pattern)
// for the digital key service. Each repository type encapsulates all database
// queries for a domain entity. Handlers never issue SQL directly — all
// database access goes through this layer, which keeps query logic testable in
// isolation and translates driver-level failures into the typed errors below.
package repositories

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Typed errors returned by all repositories. Callers classify with errors.Is;
// the HTTP layer maps them to 404 and 409 status codes.
var (
	// ErrNotFound is returned when a referenced id or natural key does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write violates a uniqueness constraint
	// (duplicate username, email, machine name, key name, key value) or when
	// an operation is invalid for the record's current state.
	ErrConflict = errors.New("conflict with existing record")

	// ErrDuplicateActivePermission is returned when an insert or update would
	// produce a second active permission for the same (user, machine) pair.
	// It wraps ErrConflict so errors.Is(err, ErrConflict) also holds.
	ErrDuplicateActivePermission = fmt.Errorf("%w: duplicate active permission for user-machine pair", ErrConflict)
)

// Postgres error codes, per the SQLSTATE standard.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// activePairIndex is the partial unique index enforcing the one-active-
// permission-per-(user,machine) invariant. Violations of this particular
// index get their own error so the grant path can report "duplicate active
// permission" rather than a generic conflict.
const activePairIndex = "permissions_one_active_per_pair"

// translateError maps Postgres constraint violations to the package's typed
// errors. Any other error is passed through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pgUniqueViolation:
		if pqErr.Constraint == activePairIndex {
			return ErrDuplicateActivePermission
		}
		return ErrConflict
	case pgForeignKeyViolation:
		// An insert referenced a user, machine, or key that no longer exists.
		return ErrNotFound
	}
	return err
}
