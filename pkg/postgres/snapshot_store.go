package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plaenen/sourcing/pkg/eventsourcing"
)

// SnapshotStore implements eventsourcing.SnapshotStore using PostgreSQL.
// One row per (aggregate_id, aggregate_type); saves upsert.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a snapshot store over an existing pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Save upserts the snapshot, replacing any prior one for the same key.
func (s *SnapshotStore) Save(ctx context.Context, snapshot *eventsourcing.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapshots (aggregate_id, aggregate_type, version, created_at, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (aggregate_id, aggregate_type)
		DO UPDATE SET version = EXCLUDED.version, created_at = EXCLUDED.created_at, data = EXCLUDED.data`,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		snapshot.CreatedAt,
		snapshot.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetLatest retrieves the single snapshot for the aggregate.
func (s *SnapshotStore) GetLatest(ctx context.Context, aggregateID, aggregateType string) (*eventsourcing.Snapshot, error) {
	var snapshot eventsourcing.Snapshot
	err := s.pool.QueryRow(ctx, `
		SELECT aggregate_id, aggregate_type, version, created_at, data
		FROM snapshots
		WHERE aggregate_id = $1 AND aggregate_type = $2`,
		aggregateID, aggregateType,
	).Scan(
		&snapshot.AggregateID,
		&snapshot.AggregateType,
		&snapshot.Version,
		&snapshot.CreatedAt,
		&snapshot.Data,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eventsourcing.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	snapshot.CreatedAt = snapshot.CreatedAt.UTC()
	return &snapshot, nil
}
