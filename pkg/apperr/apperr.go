// Package apperr defines the error kinds shared across services and
// handlers. Services wrap these sentinels with context; handlers match
// them with errors.Is to pick a response code.
package apperr

import (
	"errors"
)

var (
	// ErrValidation marks malformed input fields.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an absent entity. Organization-scope violations
	// surface as not-found so existence is never leaked across orgs.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a precondition or state-transition violation,
	// e.g. approving a non-pending receipt or double-matching.
	ErrConflict = errors.New("conflict")

	// ErrForbidden marks a missing capability (treasurer-only calls).
	ErrForbidden = errors.New("forbidden")

	// ErrExternal marks a collaborator failure (extraction, storage).
	ErrExternal = errors.New("external service failure")
)
