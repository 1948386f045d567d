package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/plaenen/sourcing/pkg/observability"
)

// Repository provides persistence operations for aggregates: it hydrates an
// aggregate from the latest snapshot plus subsequent events, and persists
// uncommitted events under an expected-version guard.
//
// The repository holds no mutable shared state between calls; correctness
// under concurrent savers comes entirely from the event store's optimistic
// version check.
type Repository[T Aggregate] struct {
	eventStore    EventStore
	snapshots     SnapshotStore
	strategy      SnapshotStrategy
	publisher     EventPublisher
	aggregateType string
	factory       func(id string) T
	logger        *slog.Logger
	metrics       *observability.Metrics
	tracer        trace.Tracer
}

// RepositoryOption configures a Repository.
type RepositoryOption[T Aggregate] func(*Repository[T])

// WithSnapshots enables snapshotting with the given store and strategy.
func WithSnapshots[T Aggregate](store SnapshotStore, strategy SnapshotStrategy) RepositoryOption[T] {
	return func(r *Repository[T]) {
		r.snapshots = store
		r.strategy = strategy
	}
}

// WithPublisher sets the best-effort publisher for appended events.
func WithPublisher[T Aggregate](publisher EventPublisher) RepositoryOption[T] {
	return func(r *Repository[T]) {
		r.publisher = publisher
	}
}

// WithLogger sets the logger used for non-fatal failures.
func WithLogger[T Aggregate](logger *slog.Logger) RepositoryOption[T] {
	return func(r *Repository[T]) {
		r.logger = logger
	}
}

// WithMetrics sets the metric instruments recorded on every operation.
func WithMetrics[T Aggregate](metrics *observability.Metrics) RepositoryOption[T] {
	return func(r *Repository[T]) {
		r.metrics = metrics
	}
}

// WithTracer sets the tracer used to span Load and Save.
func WithTracer[T Aggregate](tracer trace.Tracer) RepositoryOption[T] {
	return func(r *Repository[T]) {
		r.tracer = tracer
	}
}

// NewRepository creates a repository for the given aggregate type.
// factory creates a fresh, empty aggregate instance for an ID.
func NewRepository[T Aggregate](
	eventStore EventStore,
	aggregateType string,
	factory func(id string) T,
	opts ...RepositoryOption[T],
) *Repository[T] {
	r := &Repository[T]{
		eventStore:    eventStore,
		aggregateType: aggregateType,
		factory:       factory,
		logger:        slog.Default(),
		tracer:        tracenoop.NewTracerProvider().Tracer("sourcing"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load hydrates an aggregate by ID: latest snapshot if any, then events
// with version > snapshot version, replayed in order. Returns an error
// matching ErrAggregateNotFound when neither a snapshot nor events exist.
func (r *Repository[T]) Load(ctx context.Context, id string) (T, error) {
	var zero T
	start := Now()

	ctx, span := observability.StartSpan(ctx, r.tracer, "repository.load",
		attribute.String("aggregate.type", r.aggregateType),
		attribute.String("aggregate.id", id),
	)
	agg, err := r.load(ctx, id)
	observability.EndSpan(span, err)
	if err != nil {
		return zero, err
	}

	r.metrics.RecordLoad(ctx, r.aggregateType, Now().Sub(start))
	return agg, nil
}

func (r *Repository[T]) load(ctx context.Context, id string) (T, error) {
	var zero T

	agg := r.factory(id)
	fromVersion := r.restoreSnapshot(ctx, id, &agg)

	events, err := r.eventStore.Load(ctx, id, r.aggregateType, fromVersion)
	if err != nil {
		return zero, fmt.Errorf("failed to load events: %w", err)
	}

	if len(events) == 0 && fromVersion == 0 {
		return zero, NewNotFoundError(id, r.aggregateType)
	}

	for _, event := range events {
		if err := agg.ApplyEvent(event); err != nil {
			return zero, fmt.Errorf("failed to apply event %s (%s): %w", event.ID, event.Type, err)
		}
		agg.SetVersion(agg.Version() + 1)
	}

	return agg, nil
}

// restoreSnapshot tries to start the aggregate from its latest snapshot and
// returns the version to replay from. Any snapshot failure falls back to a
// full replay: snapshots are a pure optimization, never a source of truth.
func (r *Repository[T]) restoreSnapshot(ctx context.Context, id string, agg *T) int64 {
	if r.snapshots == nil {
		return 0
	}
	snapshotable, ok := any(*agg).(Snapshotable)
	if !ok {
		return 0
	}

	snap, err := r.snapshots.GetLatest(ctx, id, r.aggregateType)
	switch {
	case err == nil:
	case errors.Is(err, ErrSnapshotNotFound):
		r.metrics.RecordSnapshotMiss(ctx, r.aggregateType)
		return 0
	default:
		r.logger.WarnContext(ctx, "failed to load snapshot, replaying from scratch",
			slog.String("aggregate_id", id),
			slog.String("aggregate_type", r.aggregateType),
			slog.String("error", err.Error()),
		)
		return 0
	}

	if err := snapshotable.UnmarshalSnapshot(snap.Data); err != nil {
		r.logger.WarnContext(ctx, "failed to restore snapshot, replaying from scratch",
			slog.String("aggregate_id", id),
			slog.String("aggregate_type", r.aggregateType),
			slog.String("error", err.Error()),
		)
		*agg = r.factory(id)
		return 0
	}

	(*agg).SetVersion(snap.Version)
	r.metrics.RecordSnapshotHit(ctx, r.aggregateType)
	return snap.Version
}

// Save appends the aggregate's uncommitted events with expectedVersion set
// to the aggregate's current version. On success the version advances by
// the number of appended events and the uncommitted list is cleared; the
// events are then published best-effort and the snapshot strategy is
// consulted. Calling Save with no uncommitted events performs zero writes.
func (r *Repository[T]) Save(ctx context.Context, agg T) error {
	uncommitted := agg.UncommittedEvents()
	if len(uncommitted) == 0 {
		return nil
	}
	start := Now()

	ctx, span := observability.StartSpan(ctx, r.tracer, "repository.save",
		attribute.String("aggregate.type", r.aggregateType),
		attribute.String("aggregate.id", agg.ID()),
		attribute.Int("events.count", len(uncommitted)),
	)

	expectedVersion := agg.Version()
	if err := r.eventStore.Append(ctx, agg.ID(), r.aggregateType, uncommitted, expectedVersion); err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			r.metrics.RecordConflict(ctx, r.aggregateType)
		}
		observability.EndSpan(span, err)
		return fmt.Errorf("failed to append events: %w", err)
	}

	newVersion := expectedVersion + int64(len(uncommitted))
	agg.SetVersion(newVersion)
	agg.ClearUncommittedEvents()

	// The events are durable from here on. Publish and snapshot failures
	// are logged, never returned.
	r.publish(ctx, agg.ID(), uncommitted)
	r.maybeSnapshot(ctx, agg, newVersion)

	r.metrics.RecordSave(ctx, r.aggregateType, len(uncommitted), Now().Sub(start))
	observability.EndSpan(span, nil)
	return nil
}

// publish delivers appended events to the configured publisher, if any.
// At-least-once: a failure here leaves the events persisted and
// redeliverable by rescanning the store.
func (r *Repository[T]) publish(ctx context.Context, aggregateID string, events []*Event) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, aggregateID, r.aggregateType, events); err != nil {
		r.logger.WarnContext(ctx, "failed to publish events after append",
			slog.String("aggregate_id", aggregateID),
			slog.String("aggregate_type", r.aggregateType),
			slog.Int("events", len(events)),
			slog.String("error", err.Error()),
		)
		return
	}
	r.metrics.RecordPublished(ctx, r.aggregateType, len(events))
}

// maybeSnapshot consults the strategy and writes a snapshot of the current
// state at newVersion when told to.
func (r *Repository[T]) maybeSnapshot(ctx context.Context, agg T, newVersion int64) {
	if r.snapshots == nil || r.strategy == nil {
		return
	}
	snapshotable, ok := any(agg).(Snapshotable)
	if !ok {
		return
	}

	var lastVersion int64
	var lastAt *time.Time
	snap, err := r.snapshots.GetLatest(ctx, agg.ID(), r.aggregateType)
	switch {
	case err == nil:
		lastVersion = snap.Version
		createdAt := snap.CreatedAt
		lastAt = &createdAt
	case errors.Is(err, ErrSnapshotNotFound):
	default:
		r.logger.WarnContext(ctx, "failed to read latest snapshot, skipping snapshot decision",
			slog.String("aggregate_id", agg.ID()),
			slog.String("error", err.Error()),
		)
		return
	}

	if !r.strategy.ShouldSnapshot(agg, newVersion-lastVersion, lastAt) {
		return
	}

	data, err := snapshotable.MarshalSnapshot()
	if err != nil {
		r.logger.WarnContext(ctx, "failed to marshal snapshot",
			slog.String("aggregate_id", agg.ID()),
			slog.String("error", err.Error()),
		)
		return
	}

	err = r.snapshots.Save(ctx, &Snapshot{
		AggregateID:   agg.ID(),
		AggregateType: r.aggregateType,
		Version:       newVersion,
		CreatedAt:     Now().UTC(),
		Data:          data,
	})
	if err != nil {
		r.logger.WarnContext(ctx, "failed to save snapshot",
			slog.String("aggregate_id", agg.ID()),
			slog.Int64("version", newVersion),
			slog.String("error", err.Error()),
		)
		return
	}
	r.metrics.RecordSnapshotWritten(ctx, r.aggregateType)
}

// Exists reports whether the aggregate can be loaded. A not-found result is
// false without error; any other failure propagates.
func (r *Repository[T]) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.Load(ctx, id)
	if errors.Is(err, ErrAggregateNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List loads a page of aggregates for the repository's type. IDs that fail
// to load are skipped and logged so a single corrupt record cannot block a
// projection rebuild; the returned total counts every distinct ID.
func (r *Repository[T]) List(ctx context.Context, offset, limit int) ([]T, int64, error) {
	ids, total, err := r.eventStore.ListAggregateIDs(ctx, r.aggregateType, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list aggregate ids: %w", err)
	}

	aggregates := make([]T, 0, len(ids))
	for _, id := range ids {
		agg, err := r.Load(ctx, id)
		if err != nil {
			r.logger.WarnContext(ctx, "skipping aggregate that failed to load",
				slog.String("aggregate_id", id),
				slog.String("aggregate_type", r.aggregateType),
				slog.String("error", err.Error()),
			)
			continue
		}
		aggregates = append(aggregates, agg)
	}
	return aggregates, total, nil
}
