// Package sqlite provides a SQLite-backed storage provider with no CGo
// dependencies.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/plaenen/sourcing/pkg/eventsourcing"
	"github.com/plaenen/sourcing/pkg/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// EventStore is a SQLite-based implementation of eventsourcing.EventStore.
type EventStore struct {
	db    *sql.DB
	codec *eventsourcing.Codec
}

type config struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
}

func defaultConfig() config {
	return config{
		dsn:          "sourcing.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
	}
}

// Option configures the SQLite event store.
type Option func(*config)

// WithDSN sets the data source name (file path or ":memory:").
func WithDSN(dsn string) Option {
	return func(c *config) { c.dsn = dsn }
}

// WithMemoryDatabase uses an in-memory database. Handy for tests.
func WithMemoryDatabase() Option {
	return func(c *config) { c.dsn = ":memory:" }
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(c *config) { c.maxOpenConns = n }
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(c *config) { c.maxIdleConns = n }
}

// WithWALMode enables write-ahead logging for better concurrency.
// Not available for :memory: databases.
func WithWALMode(enabled bool) Option {
	return func(c *config) { c.walMode = enabled }
}

// WithAutoMigrate runs pending migrations on startup.
func WithAutoMigrate(enabled bool) Option {
	return func(c *config) { c.autoMigrate = enabled }
}

// NewEventStore opens a SQLite event store.
//
//	store, err := sqlite.NewEventStore(codec)                       // sourcing.db, WAL, auto-migrate
//	store, err := sqlite.NewEventStore(codec, sqlite.WithMemoryDatabase())
func NewEventStore(codec *eventsourcing.Codec, opts ...Option) (*EventStore, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A :memory: database exists per connection, so the pool must be a
	// single connection.
	if cfg.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	store := &EventStore{db: db, codec: codec}

	if cfg.walMode && cfg.dsn != ":memory:" {
		if err := store.setWALMode(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if cfg.autoMigrate {
		if err := runMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return store, nil
}

func (s *EventStore) setWALMode() error {
	_, err := s.db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA foreign_keys = ON;
	`)
	return err
}

func runMigrations(db *sql.DB) error {
	m := migrate.New(db, "schema_migrations")
	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	return m.Up()
}

// Append appends events as consecutive records under the expected-version
// guard. The version check runs inside the transaction; the UNIQUE
// (aggregate_id, version) constraint is the second line of defense and a
// violation of it is reported as the same concurrency error.
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentVersion int64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?",
		aggregateID,
	).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to check current version: %w", err)
	}
	if currentVersion != expectedVersion {
		return eventsourcing.NewConcurrencyError(aggregateID, expectedVersion, currentVersion)
	}

	for _, record := range records {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (event_id, aggregate_id, aggregate_type, event_type, kind, version, timestamp, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			record.EventID,
			record.AggregateID,
			record.AggregateType,
			record.EventType,
			record.Kind,
			record.Version,
			record.Timestamp.UnixNano(),
			record.Data,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return s.concurrencyError(ctx, aggregateID, expectedVersion)
			}
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return s.concurrencyError(ctx, aggregateID, expectedVersion)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// concurrencyError re-reads the stream head so the error reports the actual
// version a losing writer raced against.
func (s *EventStore) concurrencyError(ctx context.Context, aggregateID string, expected int64) error {
	var actual int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?",
		aggregateID,
	).Scan(&actual)
	if err != nil {
		actual = -1
	}
	return eventsourcing.NewConcurrencyError(aggregateID, expected, actual)
}

func isUniqueViolation(err error) bool {
	var serr *sqlitedriver.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// Load returns events with version > fromVersion in version order.
func (s *EventStore) Load(ctx context.Context, aggregateID, aggregateType string, fromVersion int64) ([]*eventsourcing.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, aggregate_id, aggregate_type, event_type, kind, version, timestamp, data
		FROM events
		WHERE aggregate_id = ? AND aggregate_type = ? AND version > ?
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
	var sinceNanos int64
	if !since.IsZero() {
		sinceNanos = since.UnixNano()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, aggregate_id, aggregate_type, event_type, kind, version, timestamp, data
		FROM events
		WHERE aggregate_type = ? AND timestamp >= ?
		ORDER BY timestamp ASC, version ASC`,
		aggregateType, sinceNanos,
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

	query := `
		SELECT event_id, aggregate_id, aggregate_type, event_type, kind, version, timestamp, data
		FROM events
		WHERE aggregate_type = ? AND kind IN (?` + strings.Repeat(",?", len(kinds)-1) + `)
		ORDER BY timestamp ASC, version ASC`
	args := make([]any, 0, len(kinds)+1)
	args = append(args, aggregateType)
	for _, kind := range kinds {
		args = append(args, kind)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT aggregate_id) FROM events WHERE aggregate_type = ?",
		aggregateType,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count aggregates: %w", err)
	}

	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT aggregate_id FROM events
		WHERE aggregate_type = ?
		ORDER BY aggregate_id
		LIMIT ? OFFSET ?`,
		aggregateType, limit, offset,
	)
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

func (s *EventStore) scanEvents(rows *sql.Rows) ([]*eventsourcing.Event, error) {
	events := make([]*eventsourcing.Event, 0)
	for rows.Next() {
		var record eventsourcing.StoredEvent
		var nanos int64
		err := rows.Scan(
			&record.EventID,
			&record.AggregateID,
			&record.AggregateType,
			&record.EventType,
			&record.Kind,
			&record.Version,
			&nanos,
			&record.Data,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		record.Timestamp = time.Unix(0, nanos).UTC()

		event, err := s.codec.DecodeStored(&record)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// DB exposes the underlying database, e.g. for projections sharing the file.
func (s *EventStore) DB() *sql.DB {
	return s.db
}

// Close closes the event store and releases resources.
func (s *EventStore) Close() error {
	return s.db.Close()
}
