package eventsourcing

import (
	"context"
	"fmt"
	"time"
)

// Snapshot is a cached serialization of an aggregate's state at a specific
// version. At most one snapshot exists per (AggregateID, AggregateType);
// writing a new one replaces the old. A snapshot is always re-derivable by
// replaying events from zero, so its loss is not data loss.
type Snapshot struct {
	AggregateID   string
	AggregateType string
	Version       int64
	CreatedAt     time.Time
	Data          []byte
}

// SnapshotStore defines the interface for snapshot persistence. Only the
// most recent snapshot is ever needed, because events after it are always
// available from the event store.
type SnapshotStore interface {
	// Save upserts the snapshot, replacing any prior snapshot for the same
	// (AggregateID, AggregateType).
	Save(ctx context.Context, snapshot *Snapshot) error

	// GetLatest retrieves the single snapshot for an aggregate.
	// Returns ErrSnapshotNotFound when none exists.
	GetLatest(ctx context.Context, aggregateID, aggregateType string) (*Snapshot, error)
}

// Snapshotable is implemented by aggregates that can be snapshotted.
type Snapshotable interface {
	// MarshalSnapshot serializes the aggregate state to bytes.
	MarshalSnapshot() ([]byte, error)

	// UnmarshalSnapshot restores the aggregate state from bytes.
	UnmarshalSnapshot(data []byte) error
}

// SnapshotStrategy decides whether a snapshot should be written after a
// save. Implementations are pure predicates: no side effects, safe to call
// on every save.
type SnapshotStrategy interface {
	// ShouldSnapshot reports whether to write a snapshot now.
	// lastSnapshotAt is nil when no prior snapshot exists.
	ShouldSnapshot(aggregate Aggregate, eventsSinceSnapshot int64, lastSnapshotAt *time.Time) bool
}

// FrequencyStrategy snapshots once at least N events have accumulated since
// the last snapshot.
type FrequencyStrategy struct {
	frequency int64
}

// NewFrequencyStrategy creates a strategy that snapshots every n events.
// n must be positive.
func NewFrequencyStrategy(n int64) (*FrequencyStrategy, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: frequency must be positive, got %d", ErrInvalidStrategy, n)
	}
	return &FrequencyStrategy{frequency: n}, nil
}

// ShouldSnapshot reports whether enough events have accumulated.
func (s *FrequencyStrategy) ShouldSnapshot(_ Aggregate, eventsSinceSnapshot int64, _ *time.Time) bool {
	return eventsSinceSnapshot >= s.frequency
}

// IntervalStrategy snapshots when no prior snapshot exists or the last one
// is older than the configured interval.
type IntervalStrategy struct {
	interval time.Duration
}

// NewIntervalStrategy creates a time-based strategy. interval must be positive.
func NewIntervalStrategy(interval time.Duration) (*IntervalStrategy, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidStrategy, interval)
	}
	return &IntervalStrategy{interval: interval}, nil
}

// ShouldSnapshot reports whether the last snapshot is missing or stale.
func (s *IntervalStrategy) ShouldSnapshot(_ Aggregate, _ int64, lastSnapshotAt *time.Time) bool {
	if lastSnapshotAt == nil {
		return true
	}
	return Now().Sub(*lastSnapshotAt) >= s.interval
}

// StrategyFunc adapts a plain function into a SnapshotStrategy.
type StrategyFunc func(aggregate Aggregate, eventsSinceSnapshot int64, lastSnapshotAt *time.Time) bool

// ShouldSnapshot calls the wrapped function.
func (f StrategyFunc) ShouldSnapshot(aggregate Aggregate, eventsSinceSnapshot int64, lastSnapshotAt *time.Time) bool {
	return f(aggregate, eventsSinceSnapshot, lastSnapshotAt)
}
