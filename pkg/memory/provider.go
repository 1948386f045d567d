package memory

import (
	"context"
	"errors"

	"github.com/plaenen/sourcing/pkg/eventsourcing"
)

// Provider implements eventsourcing.StorageProvider over the in-memory
// stores. Useful for tests and as a reference for durable providers.
type Provider struct {
	codec *eventsourcing.Codec

	eventStore    *EventStore
	snapshotStore *SnapshotStore
}

// NewProvider creates a provider over the given codec.
func NewProvider(codec *eventsourcing.Codec) *Provider {
	return &Provider{codec: codec}
}

// CreateEventStore returns the shared in-memory event store.
func (p *Provider) CreateEventStore() (eventsourcing.EventStore, error) {
	if p.eventStore == nil {
		p.eventStore = NewEventStore(p.codec)
	}
	return p.eventStore, nil
}

// CreateSnapshotStore returns the shared in-memory snapshot store.
func (p *Provider) CreateSnapshotStore() (eventsourcing.SnapshotStore, error) {
	if p.snapshotStore == nil {
		p.snapshotStore = NewSnapshotStore()
	}
	return p.snapshotStore, nil
}

// Initialize is a no-op: there is nothing to create in memory.
func (p *Provider) Initialize(ctx context.Context, aggregateTypes []string) error {
	return nil
}

// ValidateConfiguration checks that a codec was supplied.
func (p *Provider) ValidateConfiguration() error {
	if p.codec == nil {
		return errors.New("memory provider requires a codec")
	}
	return nil
}

// Close is a no-op for the in-memory provider.
func (p *Provider) Close() error {
	return nil
}
