package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/plaenen/sourcing/pkg/eventsourcing"
)

// SnapshotStore implements eventsourcing.SnapshotStore using SQLite.
// One row per (aggregate_id, aggregate_type); saves upsert.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore creates a snapshot store over an existing database,
// typically the event store's via DB().
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save upserts the snapshot, replacing any prior one for the same key.
func (s *SnapshotStore) Save(ctx context.Context, snapshot *eventsourcing.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (aggregate_id, aggregate_type, version, created_at, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (aggregate_id, aggregate_type)
		DO UPDATE SET version = excluded.version, created_at = excluded.created_at, data = excluded.data`,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		snapshot.CreatedAt.UnixNano(),
		snapshot.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetLatest retrieves the single snapshot for the aggregate.
func (s *SnapshotStore) GetLatest(ctx context.Context, aggregateID, aggregateType string) (*eventsourcing.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT aggregate_id, aggregate_type, version, created_at, data
		FROM snapshots
		WHERE aggregate_id = ? AND aggregate_type = ?`,
		aggregateID, aggregateType,
	)

	var snapshot eventsourcing.Snapshot
	var nanos int64
	err := row.Scan(
		&snapshot.AggregateID,
		&snapshot.AggregateType,
		&snapshot.Version,
		&nanos,
		&snapshot.Data,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eventsourcing.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	snapshot.CreatedAt = time.Unix(0, nanos).UTC()
	return &snapshot, nil
}
