package errs

import (
	"database/sql"
	"errors"
	"testing"
)

func TestWrapConvertsNoRows(t *testing.T) {
	err := Wrap("tm.get", sql.ErrNoRows)
	if !IsNotFound(err) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestWrapPreservesOtherErrors(t *testing.T) {
	underlying := errors.New("disk full")
	err := Wrap("tm.get", underlying)
	if !errors.Is(err, underlying) {
		t.Fatalf("expected wrapped error to unwrap to underlying, got %v", err)
	}
	if IsNotFound(err) {
		t.Fatalf("did not expect not_found for non-sql.ErrNoRows error")
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap("op", nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}

func TestConflictAndValidation(t *testing.T) {
	if !IsConflict(Conflict("folder.create", "sibling name exists")) {
		t.Fatalf("expected conflict")
	}
	if !IsValidationFailed(Validation("row.create", "empty source")) {
		t.Fatalf("expected validation_failed")
	}
	if !IsPermissionDenied(PermissionDenied("tm.delete")) {
		t.Fatalf("expected permission_denied")
	}
}
