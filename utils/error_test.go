package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationErrorDetection(t *testing.T) {
	err := NewValidationError("quantity must be positive, got %d", -3)
	if !IsValidationError(err) {
		t.Fatalf("expected IsValidationError=true")
	}
	if got := err.Error(); got != "quantity must be positive, got -3" {
		t.Fatalf("unexpected message: %q", got)
	}

	// Detection must survive wrapping.
	wrapped := fmt.Errorf("create item: %w", err)
	if !IsValidationError(wrapped) {
		t.Fatalf("expected wrapped validation error to be detected")
	}

	if IsValidationError(errors.New("plain")) {
		t.Fatalf("plain error must not be a validation error")
	}
	if IsValidationError(nil) {
		t.Fatalf("nil must not be a validation error")
	}
}

func TestInsufficientStockError(t *testing.T) {
	err := &InsufficientStockError{
		BatchId:   7,
		StoreId:   2,
		Requested: 10,
		Available: 4,
		Reason:    "on-hand exhausted",
	}
	want := "insufficient stock for batch 7 at store 2: requested 10, available 4 (on-hand exhausted)"
	if got := err.Error(); got != want {
		t.Fatalf("message mismatch:\n got %q\nwant %q", got, want)
	}
	if !IsInsufficientStock(err) {
		t.Fatalf("expected IsInsufficientStock=true")
	}
	if !IsInsufficientStock(fmt.Errorf("issue transfer: %w", err)) {
		t.Fatalf("expected wrapped error to be detected")
	}
	if IsInsufficientStock(ErrConcurrencyConflict) {
		t.Fatalf("unrelated sentinel must not match")
	}
}

func TestInvalidStateTransitionError(t *testing.T) {
	err := &InvalidStateTransitionError{Entity: "transfer note", From: "RECEIVED", Action: "cancelled"}
	if got := err.Error(); got != "transfer note cannot be cancelled from status RECEIVED" {
		t.Fatalf("unexpected message: %q", got)
	}
	if !IsInvalidStateTransition(err) {
		t.Fatalf("expected IsInvalidStateTransition=true")
	}
	if IsInvalidStateTransition(NewValidationError("x")) {
		t.Fatalf("validation error must not match state transition check")
	}
}
