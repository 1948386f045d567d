package memory

import (
	"context"
	"sync"

	"github.com/plaenen/sourcing/pkg/eventsourcing"
)

// SnapshotStore is an in-memory implementation of
// eventsourcing.SnapshotStore. Latest-wins: each save replaces the prior
// snapshot for the same key.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[streamKey]*eventsourcing.Snapshot
}

// NewSnapshotStore creates an empty in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[streamKey]*eventsourcing.Snapshot)}
}

// Save upserts the snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snapshot *eventsourcing.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *snapshot
	copied.Data = append([]byte(nil), snapshot.Data...)
	s.snapshots[streamKey{
		aggregateID:   snapshot.AggregateID,
		aggregateType: snapshot.AggregateType,
	}] = &copied
	return nil
}

// GetLatest returns the single snapshot for the aggregate.
func (s *SnapshotStore) GetLatest(ctx context.Context, aggregateID, aggregateType string) (*eventsourcing.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[streamKey{aggregateID: aggregateID, aggregateType: aggregateType}]
	if !ok {
		return nil, eventsourcing.ErrSnapshotNotFound
	}
	copied := *snap
	copied.Data = append([]byte(nil), snap.Data...)
	return &copied, nil
}
