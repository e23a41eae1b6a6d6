package eventstore

import (
	"errors"
	"fmt"
)

// Error types for store operations.
var (
	// ErrConcurrencyConflict means a version or existence guard failed because
	// another writer advanced the aggregate first. Callers re-read the latest
	// snapshot and retry; stores never retry internally.
	ErrConcurrencyConflict = errors.New("optimistic lock failed")
	// ErrDuplicateEvent means a journal record already exists for the event's
	// sequence number. It is always reported together with ErrConcurrencyConflict.
	ErrDuplicateEvent = errors.New("duplicate journal entry")
	// ErrValidation reports caller misuse.
	ErrValidation = errors.New("invalid argument")
	// ErrCorruptedRecord means a stored record is missing a required attribute.
	ErrCorruptedRecord = errors.New("corrupted record")
)

// OptimisticLockError is returned when a write loses the race for an aggregate.
// It matches ErrConcurrencyConflict with errors.Is, and ErrDuplicateEvent when the
// journal guard was the one that failed.
type OptimisticLockError struct {
	AggregateID string
	Duplicate   bool
	Err         error
}

// NewOptimisticLockError wraps cause for the aggregate with the given id string.
func NewOptimisticLockError(aid string, duplicate bool, cause error) *OptimisticLockError {
	return &OptimisticLockError{AggregateID: aid, Duplicate: duplicate, Err: cause}
}

func (e *OptimisticLockError) Error() string {
	msg := fmt.Sprintf("optimistic lock failed for %s", e.AggregateID)
	if e.Duplicate {
		msg += ": sequence number already persisted"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OptimisticLockError) Unwrap() []error {
	errs := []error{ErrConcurrencyConflict}
	if e.Duplicate {
		errs = append(errs, ErrDuplicateEvent)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
