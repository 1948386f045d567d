// Package postgres provides a PostgreSQL-backed storage provider using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plaenen/sourcing/pkg/eventsourcing"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// EventStore is a PostgreSQL-based implementation of
// eventsourcing.EventStore backed by a pgx connection pool.
type EventStore struct {
	pool  *pgxpool.Pool
	codec *eventsourcing.Codec
}

// NewEventStore creates an event store over an existing pool.
func NewEventStore(pool *pgxpool.Pool, codec *eventsourcing.Codec) *EventStore {
	return &EventStore{pool: pool, codec: codec}
}

// Append appends events as consecutive records under the expected-version
// guard. The version check runs inside the transaction; the unique index on
// (aggregate_id, version) is the second line of defense, reported as the
// same concurrency error.
func (s *EventStore) Append(ctx context.Context, aggregateID, aggregateType string, events []*eventsourcing.Event, expectedVersion int64) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]*eventsourcing.StoredEvent, 0, len(events))
	for i, event := range events {
		record, err := s.codec.EncodeStored(event, aggregateID, aggregateType, expectedVersion+int64(i)+1)
		if err != nil {
			return err
		}
		records = append(records, record)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentVersion int64
	err = tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1",
		aggregateID,
	).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to check current version: %w", err)
	}
	if currentVersion != expectedVersion {
		return eventsourcing.NewConcurrencyError(aggregateID, expectedVersion, currentVersion)
	}

	for _, record := range records {
		_, err = tx.Exec(ctx, `
			INSERT INTO events (event_id, aggregate_id, aggregate_type, event_type, kind, version, timestamp, data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			record.EventID,
			record.AggregateID,
			record.AggregateType,
			record.EventType,
			record.Kind,
			record.Version,
			record.Timestamp,
			record.Data,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return s.concurrencyError(ctx, aggregateID, expectedVersion)
			}
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return s.concurrencyError(ctx, aggregateID, expectedVersion)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *EventStore) concurrencyError(ctx context.Context, aggregateID string, expected int64) error {
	var actual int64
	err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1",
		aggregateID,
	).Scan(&actual)
	if err != nil {
		actual = -1
	}
	return eventsourcing.NewConcurrencyError(aggregateID, expected, actual)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Load returns events with version > fromVersion in version order.
func (s *EventStore) Load(ctx context.Context, aggregateID, aggregateType string, fromVersion int64) ([]*eventsourcing.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, aggregate_id, aggregate_type, event_type, kind, version, timestamp, data
		FROM events
		WHERE aggregate_id = $1 AND aggregate_type = $2 AND version > $3
		ORDER BY version ASC`,
		aggregateID, aggregateType, fromVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return s.scanEvents(rows)
}

// LoadAll returns all events for an aggregate type ordered by timestamp
// then version. A zero since means no lower bound. Full scan.
func (s *EventStore) LoadAll(ctx context.Context, aggregateType string, since time.Time) ([]*eventsourcing.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, aggregate_id, aggregate_type, event_type, kind, version, timestamp, data
		FROM events
		WHERE aggregate_type = $1 AND ($2::timestamptz IS NULL OR timestamp >= $2)
		ORDER BY timestamp ASC, version ASC`,
		aggregateType, nullableTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return s.scanEvents(rows)
}

// LoadByKind returns events of the given kinds ordered by timestamp then
// version. Full scan.
func (s *EventStore) LoadByKind(ctx context.Context, aggregateType string, kinds ...string) ([]*eventsourcing.Event, error) {
	if len(kinds) == 0 {
		return []*eventsourcing.Event{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT event_id, aggregate_id, aggregate_type, event_type, kind, version, timestamp, data
		FROM events
		WHERE aggregate_type = $1 AND kind = ANY($2)
		ORDER BY timestamp ASC, version ASC`,
		aggregateType, kinds,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return s.scanEvents(rows)
}

// ListAggregateIDs returns a page of distinct aggregate IDs with the total
// count of distinct IDs for the type.
func (s *EventStore) ListAggregateIDs(ctx context.Context, aggregateType string, offset, limit int) ([]string, int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(DISTINCT aggregate_id) FROM events WHERE aggregate_type = $1",
		aggregateType,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count aggregates: %w", err)
	}

	query := strings.Builder{}
	query.WriteString(`
		SELECT DISTINCT aggregate_id FROM events
		WHERE aggregate_type = $1
		ORDER BY aggregate_id
		OFFSET $2`)
	args := []any{aggregateType, offset}
	if limit > 0 {
		query.WriteString(" LIMIT $3")
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list aggregates: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, 0, fmt.Errorf("failed to scan aggregate id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, total, rows.Err()
}

func (s *EventStore) scanEvents(rows pgx.Rows) ([]*eventsourcing.Event, error) {
	events := make([]*eventsourcing.Event, 0)
	for rows.Next() {
		var record eventsourcing.StoredEvent
		err := rows.Scan(
			&record.EventID,
			&record.AggregateID,
			&record.AggregateType,
			&record.EventType,
			&record.Kind,
			&record.Version,
			&record.Timestamp,
			&record.Data,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		record.Timestamp = record.Timestamp.UTC()

		event, err := s.codec.DecodeStored(&record)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Close releases the pool.
func (s *EventStore) Close() error {
	s.pool.Close()
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
