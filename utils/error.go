package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrAlreadyProcessed guards idempotent one-shot operations
// (e.g. processing an inspection certificate twice).
var ErrAlreadyProcessed = errors.New("already processed")

// ErrConcurrencyConflict is returned after lock/retry attempts are exhausted.
// Callers should treat it as transient and retry the whole operation.
var ErrConcurrencyConflict = errors.New("concurrent stock operation in progress; try again")

// ValidationError marks malformed or out-of-range input. No partial effect.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InsufficientStockError identifies the batch/store whose on-hand, allocated
// or tag-budget check failed. The whole operation is aborted.
type InsufficientStockError struct {
	BatchId   int
	StoreId   int
	Requested int
	Available int
	Reason    string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for batch %d at store %d: requested %d, available %d (%s)",
		e.BatchId, e.StoreId, e.Requested, e.Available, e.Reason)
}

func IsInsufficientStock(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}

// InvalidStateTransitionError marks an operation attempted from a status that
// does not permit it.
type InvalidStateTransitionError struct {
	Entity string
	From   string
	Action string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s cannot be %s from status %s", e.Entity, e.Action, e.From)
}

func IsInvalidStateTransition(err error) bool {
	var ste *InvalidStateTransitionError
	return errors.As(err, &ste)
}
