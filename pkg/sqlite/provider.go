package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/plaenen/sourcing/pkg/eventsourcing"
)

// Provider implements eventsourcing.StorageProvider over a single SQLite
// database shared by the event store and the snapshot store.
type Provider struct {
	codec *eventsourcing.Codec
	opts  []Option

	eventStore *EventStore
}

// NewProvider creates a SQLite storage provider.
func NewProvider(codec *eventsourcing.Codec, opts ...Option) *Provider {
	return &Provider{codec: codec, opts: opts}
}

// CreateEventStore opens (once) and returns the event store.
func (p *Provider) CreateEventStore() (eventsourcing.EventStore, error) {
	if err := p.ensureOpen(); err != nil {
		return nil, err
	}
	return p.eventStore, nil
}

// CreateSnapshotStore returns a snapshot store sharing the event store's
// database.
func (p *Provider) CreateSnapshotStore() (eventsourcing.SnapshotStore, error) {
	if err := p.ensureOpen(); err != nil {
		return nil, err
	}
	return NewSnapshotStore(p.eventStore.DB()), nil
}

// Initialize runs migrations. Aggregate types need no per-type objects in
// this backend; the shared tables and indexes cover them all.
func (p *Provider) Initialize(ctx context.Context, aggregateTypes []string) error {
	if err := p.ensureOpen(); err != nil {
		return err
	}
	return runMigrations(p.eventStore.DB())
}

// ValidateConfiguration checks the provider configuration.
func (p *Provider) ValidateConfiguration() error {
	if p.codec == nil {
		return errors.New("sqlite provider requires a codec")
	}
	cfg := defaultConfig()
	for _, opt := range p.opts {
		opt(&cfg)
	}
	if cfg.dsn == "" {
		return errors.New("sqlite provider requires a DSN")
	}
	if cfg.maxOpenConns <= 0 {
		return fmt.Errorf("max open connections must be positive, got %d", cfg.maxOpenConns)
	}
	return nil
}

// Close closes the underlying database.
func (p *Provider) Close() error {
	if p.eventStore == nil {
		return nil
	}
	return p.eventStore.Close()
}

func (p *Provider) ensureOpen() error {
	if p.eventStore != nil {
		return nil
	}
	store, err := NewEventStore(p.codec, p.opts...)
	if err != nil {
		return fmt.Errorf("failed to open sqlite store: %w", err)
	}
	p.eventStore = store
	return nil
}
