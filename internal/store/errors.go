package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrJobNotFound, ErrInsightNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a second metadata row for the same task name).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrStatusConflict is returned when a conditional status transition
	// does not apply because the row is not in an eligible current status.
	// Callers use this to detect lost claim races and already-terminal rows.
	ErrStatusConflict = errors.New("status conflict")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrJobNotFound indicates that the requested insight job does not exist in the store.
	ErrJobNotFound = fmt.Errorf("%w: insight job", ErrNotFound)

	// ErrTaskNotFound indicates that the requested task metadata row does not exist in the store.
	ErrTaskNotFound = fmt.Errorf("%w: task metadata", ErrNotFound)

	// ErrInsightNotFound indicates that the requested insight artifact does not exist in the store.
	ErrInsightNotFound = fmt.Errorf("%w: insight", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrActiveJobExists indicates that the user already has a queued or
	// running job. Raised by the partial unique index on insight_jobs, so
	// it holds even when two admissions race.
	ErrActiveJobExists = fmt.Errorf("%w: active job for user", ErrDuplicate)

	// ErrTaskNameExists indicates that metadata for the task name was
	// already recorded.
	ErrTaskNameExists = fmt.Errorf("%w: task name", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
// This includes the generic ErrNotFound and all entity-specific not found errors.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
// This includes the generic ErrDuplicate and all entity-specific duplicate errors.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "insight_job", "task_metadata")
	Operation string // The operation that failed (e.g., "create", "claim")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
