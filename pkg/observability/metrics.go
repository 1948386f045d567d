package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the aggregate persistence engine.
type Metrics struct {
	// Repository metrics
	RepositoryLoads metric.Int64Counter
	RepositorySaves metric.Int64Counter
	LoadDuration    metric.Float64Histogram
	SaveDuration    metric.Float64Histogram

	// Event metrics
	EventsAppended  metric.Int64Counter
	EventsPublished metric.Int64Counter

	// Snapshot metrics
	SnapshotHits     metric.Int64Counter
	SnapshotMisses   metric.Int64Counter
	SnapshotsWritten metric.Int64Counter

	// Concurrency metrics
	ConcurrencyConflicts metric.Int64Counter
}

// NewMetrics creates all metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RepositoryLoads, err = meter.Int64Counter(
		"sourcing.repository.loads",
		metric.WithDescription("Total aggregate loads"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating repository.loads: %w", err)
	}

	m.RepositorySaves, err = meter.Int64Counter(
		"sourcing.repository.saves",
		metric.WithDescription("Total aggregate saves"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating repository.saves: %w", err)
	}

	m.LoadDuration, err = meter.Float64Histogram(
		"sourcing.repository.load.duration",
		metric.WithDescription("Aggregate load duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating repository.load.duration: %w", err)
	}

	m.SaveDuration, err = meter.Float64Histogram(
		"sourcing.repository.save.duration",
		metric.WithDescription("Aggregate save duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating repository.save.duration: %w", err)
	}

	m.EventsAppended, err = meter.Int64Counter(
		"sourcing.events.appended",
		metric.WithDescription("Total events appended to the event store"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.appended: %w", err)
	}

	m.EventsPublished, err = meter.Int64Counter(
		"sourcing.events.published",
		metric.WithDescription("Total events published to subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.published: %w", err)
	}

	m.SnapshotHits, err = meter.Int64Counter(
		"sourcing.snapshot.hits",
		metric.WithDescription("Aggregate loads that started from a snapshot"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot.hits: %w", err)
	}

	m.SnapshotMisses, err = meter.Int64Counter(
		"sourcing.snapshot.misses",
		metric.WithDescription("Aggregate loads that replayed from version zero"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot.misses: %w", err)
	}

	m.SnapshotsWritten, err = meter.Int64Counter(
		"sourcing.snapshot.written",
		metric.WithDescription("Snapshots written by the snapshot strategy"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot.written: %w", err)
	}

	m.ConcurrencyConflicts, err = meter.Int64Counter(
		"sourcing.concurrency.conflicts",
		metric.WithDescription("Optimistic concurrency conflicts on append"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating concurrency.conflicts: %w", err)
	}

	return m, nil
}

// RecordLoad records a completed aggregate load.
func (m *Metrics) RecordLoad(ctx context.Context, aggregateType string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("aggregate.type", aggregateType))
	m.RepositoryLoads.Add(ctx, 1, attrs)
	m.LoadDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordSave records a completed aggregate save.
func (m *Metrics) RecordSave(ctx context.Context, aggregateType string, appended int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("aggregate.type", aggregateType))
	m.RepositorySaves.Add(ctx, 1, attrs)
	m.SaveDuration.Record(ctx, d.Seconds(), attrs)
	m.EventsAppended.Add(ctx, int64(appended), attrs)
}

// RecordPublished records events delivered to subscribers.
func (m *Metrics) RecordPublished(ctx context.Context, aggregateType string, count int) {
	if m == nil {
		return
	}
	m.EventsPublished.Add(ctx, int64(count),
		metric.WithAttributes(attribute.String("aggregate.type", aggregateType)))
}

// RecordSnapshotHit records a load that started from a snapshot.
func (m *Metrics) RecordSnapshotHit(ctx context.Context, aggregateType string) {
	if m == nil {
		return
	}
	m.SnapshotHits.Add(ctx, 1,
		metric.WithAttributes(attribute.String("aggregate.type", aggregateType)))
}

// RecordSnapshotMiss records a load that replayed from version zero.
func (m *Metrics) RecordSnapshotMiss(ctx context.Context, aggregateType string) {
	if m == nil {
		return
	}
	m.SnapshotMisses.Add(ctx, 1,
		metric.WithAttributes(attribute.String("aggregate.type", aggregateType)))
}

// RecordSnapshotWritten records a snapshot write.
func (m *Metrics) RecordSnapshotWritten(ctx context.Context, aggregateType string) {
	if m == nil {
		return
	}
	m.SnapshotsWritten.Add(ctx, 1,
		metric.WithAttributes(attribute.String("aggregate.type", aggregateType)))
}

// RecordConflict records an optimistic concurrency conflict.
func (m *Metrics) RecordConflict(ctx context.Context, aggregateType string) {
	if m == nil {
		return
	}
	m.ConcurrencyConflicts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("aggregate.type", aggregateType)))
}
