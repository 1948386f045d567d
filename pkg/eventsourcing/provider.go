package eventsourcing

import "context"

// StorageProvider is the pluggable boundary to a concrete storage backend.
// The engine is storage-agnostic; it only requires the EventStore and
// SnapshotStore contracts.
type StorageProvider interface {
	// CreateEventStore returns the backend's event store.
	CreateEventStore() (EventStore, error)

	// CreateSnapshotStore returns the backend's snapshot store.
	CreateSnapshotStore() (SnapshotStore, error)

	// Initialize creates whatever tables or indexes the backend needs for
	// the given aggregate types. Safe to call repeatedly.
	Initialize(ctx context.Context, aggregateTypes []string) error

	// ValidateConfiguration checks the provider configuration without
	// touching storage. Misconfiguration should surface here, at startup.
	ValidateConfiguration() error

	// Close releases backend resources.
	Close() error
}
