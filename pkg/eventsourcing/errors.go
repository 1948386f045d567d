package eventsourcing

import (
	"errors"
	"fmt"
)

var (
	// ErrAggregateNotFound is returned when neither a snapshot nor any
	// events exist for the requested aggregate.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrConcurrencyConflict is returned when there's an optimistic concurrency conflict.
	ErrConcurrencyConflict = errors.New("concurrency conflict: aggregate version mismatch")

	// ErrSnapshotNotFound is returned when a snapshot cannot be found.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrUnregisteredEventType is returned when deserializing an event whose
	// type name was never registered. This indicates a deployment defect.
	ErrUnregisteredEventType = errors.New("unregistered event type")

	// ErrUpcastChainTooLong is returned when upcasting an event exceeds the
	// maximum chain length, which almost always means a cyclic registration.
	ErrUpcastChainTooLong = errors.New("upcaster chain exceeds maximum length")

	// ErrInvalidStrategy is returned when a snapshot strategy is constructed
	// with non-positive parameters.
	ErrInvalidStrategy = errors.New("invalid snapshot strategy configuration")
)

// ConcurrencyError reports an optimistic concurrency failure with the
// versions involved. Recoverable by the caller via reload-and-retry; never
// auto-retried inside the engine.
type ConcurrencyError struct {
	AggregateID string
	Expected    int64
	Actual      int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %s: expected version %d, actual %d",
		e.AggregateID, e.Expected, e.Actual)
}

func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// NewConcurrencyError creates a new concurrency error.
func NewConcurrencyError(aggregateID string, expected, actual int64) error {
	return &ConcurrencyError{
		AggregateID: aggregateID,
		Expected:    expected,
		Actual:      actual,
	}
}

// NotFoundError reports a missing aggregate with its identity.
type NotFoundError struct {
	AggregateID   string
	AggregateType string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("aggregate %s/%s not found", e.AggregateType, e.AggregateID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrAggregateNotFound
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(aggregateID, aggregateType string) error {
	return &NotFoundError{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
	}
}

// UnregisteredEventTypeError names the event type that was not registered.
type UnregisteredEventTypeError struct {
	EventType string
}

func (e *UnregisteredEventTypeError) Error() string {
	return fmt.Sprintf("unregistered event type %q: register it before deserializing", e.EventType)
}

func (e *UnregisteredEventTypeError) Is(target error) bool {
	return target == ErrUnregisteredEventType
}
