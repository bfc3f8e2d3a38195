// Package errs normalises backend-specific failures into the outcome
// kinds named by the specification's error-handling design: not_found,
// conflict, validation_failed, permission_denied, backend_unavailable,
// index_unavailable, feature_unavailable_in_mode, and internal. Every
// repository and indexer operation returns errors wrapped through this
// package so routes never need to know which backend produced them.
package errs

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors for the outcome kinds in the error-handling design.
var (
	ErrNotFound                 = errors.New("not_found")
	ErrConflict                 = errors.New("conflict")
	ErrValidationFailed         = errors.New("validation_failed")
	ErrPermissionDenied         = errors.New("permission_denied")
	ErrBackendUnavailable       = errors.New("backend_unavailable")
	ErrIndexUnavailable         = errors.New("index_unavailable")
	ErrFeatureUnavailableInMode = errors.New("feature_unavailable_in_mode")
	ErrInternal                 = errors.New("internal")
)

// Wrap attaches an operation label to err and converts sql.ErrNoRows to
// ErrNotFound, mirroring the teacher repository's wrapDBError helper so
// every backend normalises the same way.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Wrapf is Wrap with a formatted operation label.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(fmt.Sprintf(format, args...), err)
}

// NotFound builds a not_found error scoped to op.
func NotFound(op string) error { return fmt.Errorf("%s: %w", op, ErrNotFound) }

// Conflict builds a conflict error scoped to op with a human-readable reason.
func Conflict(op, reason string) error {
	return fmt.Errorf("%s: %s: %w", op, reason, ErrConflict)
}

// PermissionDenied builds a permission_denied error scoped to op.
func PermissionDenied(op string) error {
	return fmt.Errorf("%s: %w", op, ErrPermissionDenied)
}

// Validation builds a validation_failed error scoped to op with a reason.
func Validation(op, reason string) error {
	return fmt.Errorf("%s: %s: %w", op, reason, ErrValidationFailed)
}

func IsNotFound(err error) bool           { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool           { return errors.Is(err, ErrConflict) }
func IsValidationFailed(err error) bool   { return errors.Is(err, ErrValidationFailed) }
func IsPermissionDenied(err error) bool   { return errors.Is(err, ErrPermissionDenied) }
func IsBackendUnavailable(err error) bool { return errors.Is(err, ErrBackendUnavailable) }
func IsIndexUnavailable(err error) bool   { return errors.Is(err, ErrIndexUnavailable) }
func IsFeatureUnavailable(err error) bool { return errors.Is(err, ErrFeatureUnavailableInMode) }
func IsInternal(err error) bool           { return errors.Is(err, ErrInternal) }
