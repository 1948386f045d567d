package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plaenen/sourcing/pkg/eventsourcing"
)

// Provider implements eventsourcing.StorageProvider over a pgx pool.
type Provider struct {
	databaseURL string
	codec       *eventsourcing.Codec

	pool *pgxpool.Pool
}

// NewProvider creates a PostgreSQL storage provider for the given URL.
func NewProvider(databaseURL string, codec *eventsourcing.Codec) *Provider {
	return &Provider{databaseURL: databaseURL, codec: codec}
}

// CreateEventStore connects (once) and returns the event store.
func (p *Provider) CreateEventStore() (eventsourcing.EventStore, error) {
	if err := p.ensurePool(); err != nil {
		return nil, err
	}
	return NewEventStore(p.pool, p.codec), nil
}

// CreateSnapshotStore connects (once) and returns the snapshot store.
func (p *Provider) CreateSnapshotStore() (eventsourcing.SnapshotStore, error) {
	if err := p.ensurePool(); err != nil {
		return nil, err
	}
	return NewSnapshotStore(p.pool), nil
}

// Initialize creates the tables and indexes. Safe to call repeatedly; the
// shared tables cover every aggregate type.
func (p *Provider) Initialize(ctx context.Context, aggregateTypes []string) error {
	if err := p.ensurePool(); err != nil {
		return err
	}

	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			position        BIGSERIAL PRIMARY KEY,
			event_id        TEXT        NOT NULL UNIQUE,
			aggregate_id    TEXT        NOT NULL,
			aggregate_type  TEXT        NOT NULL,
			event_type      TEXT        NOT NULL,
			kind            TEXT        NOT NULL,
			version         BIGINT      NOT NULL,
			timestamp       TIMESTAMPTZ NOT NULL,
			data            BYTEA       NOT NULL,
			UNIQUE (aggregate_id, version)
		);

		CREATE INDEX IF NOT EXISTS idx_events_stream
			ON events (aggregate_id, aggregate_type, version);
		CREATE INDEX IF NOT EXISTS idx_events_type_timestamp
			ON events (aggregate_type, timestamp, version);
		CREATE INDEX IF NOT EXISTS idx_events_type_kind
			ON events (aggregate_type, kind);

		CREATE TABLE IF NOT EXISTS snapshots (
			aggregate_id    TEXT        NOT NULL,
			aggregate_type  TEXT        NOT NULL,
			version         BIGINT      NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			data            BYTEA       NOT NULL,
			PRIMARY KEY (aggregate_id, aggregate_type)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// ValidateConfiguration checks the provider configuration without
// connecting.
func (p *Provider) ValidateConfiguration() error {
	if p.codec == nil {
		return errors.New("postgres provider requires a codec")
	}
	if p.databaseURL == "" {
		return errors.New("postgres provider requires a database URL")
	}
	if _, err := pgxpool.ParseConfig(p.databaseURL); err != nil {
		return fmt.Errorf("invalid database URL: %w", err)
	}
	return nil
}

// Close releases the pool.
func (p *Provider) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *Provider) ensurePool() error {
	if p.pool != nil {
		return nil
	}
	pool, err := pgxpool.New(context.Background(), p.databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	p.pool = pool
	return nil
}
