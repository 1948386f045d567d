// Package memory provides in-memory implementations of the storage
// contracts. It is the reference backend used by the engine tests; events
// are stored in their serialized form so reads exercise the same decode and
// upcast path as the durable backends.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/plaenen/sourcing/pkg/eventsourcing"
)

// EventStore is an in-memory implementation of eventsourcing.EventStore.
//
// The mutex only protects the maps; the append contract itself is enforced
// with the same version check the durable backends use.
type EventStore struct {
	codec *eventsourcing.Codec

	mu      sync.RWMutex
	streams map[streamKey][]*eventsourcing.StoredEvent
	// byType preserves append order per aggregate type for the scan reads
	byType map[string][]*eventsourcing.StoredEvent
}

type streamKey struct {
	aggregateID   string
	aggregateType string
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore(codec *eventsourcing.Codec) *EventStore {
	return &EventStore{
		codec:   codec,
		streams: make(map[streamKey][]*eventsourcing.StoredEvent),
		byType:  make(map[string][]*eventsourcing.StoredEvent),
	}
}

// Append appends events under the expected-version guard.
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

	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{aggregateID: aggregateID, aggregateType: aggregateType}
	current := int64(len(s.streams[key]))
	if current != expectedVersion {
		return eventsourcing.NewConcurrencyError(aggregateID, expectedVersion, current)
	}

	s.streams[key] = append(s.streams[key], records...)
	s.byType[aggregateType] = append(s.byType[aggregateType], records...)
	return nil
}

// Load returns events with version > fromVersion in version order.
func (s *EventStore) Load(ctx context.Context, aggregateID, aggregateType string, fromVersion int64) ([]*eventsourcing.Event, error) {
	s.mu.RLock()
	records := s.streams[streamKey{aggregateID: aggregateID, aggregateType: aggregateType}]
	filtered := make([]*eventsourcing.StoredEvent, 0, len(records))
	for _, record := range records {
		if record.Version > fromVersion {
			filtered = append(filtered, record)
		}
	}
	s.mu.RUnlock()

	return s.decode(filtered)
}

// LoadAll returns every event for an aggregate type, ordered by timestamp
// then version.
func (s *EventStore) LoadAll(ctx context.Context, aggregateType string, since time.Time) ([]*eventsourcing.Event, error) {
	s.mu.RLock()
	filtered := make([]*eventsourcing.StoredEvent, 0, len(s.byType[aggregateType]))
	for _, record := range s.byType[aggregateType] {
		if since.IsZero() || !record.Timestamp.Before(since) {
			filtered = append(filtered, record)
		}
	}
	s.mu.RUnlock()

	sortScan(filtered)
	return s.decode(filtered)
}

// LoadByKind returns events of the given kinds, ordered by timestamp then
// version.
func (s *EventStore) LoadByKind(ctx context.Context, aggregateType string, kinds ...string) ([]*eventsourcing.Event, error) {
	wanted := make(map[string]struct{}, len(kinds))
	for _, kind := range kinds {
		wanted[kind] = struct{}{}
	}

	s.mu.RLock()
	filtered := make([]*eventsourcing.StoredEvent, 0)
	for _, record := range s.byType[aggregateType] {
		if _, ok := wanted[record.Kind]; ok {
			filtered = append(filtered, record)
		}
	}
	s.mu.RUnlock()

	sortScan(filtered)
	return s.decode(filtered)
}

// ListAggregateIDs returns a page of distinct aggregate IDs for a type.
func (s *EventStore) ListAggregateIDs(ctx context.Context, aggregateType string, offset, limit int) ([]string, int64, error) {
	s.mu.RLock()
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, record := range s.byType[aggregateType] {
		if _, ok := seen[record.AggregateID]; !ok {
			seen[record.AggregateID] = struct{}{}
			ids = append(ids, record.AggregateID)
		}
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	total := int64(len(ids))
	if offset >= len(ids) {
		return []string{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end], total, nil
}

// Close is a no-op for the in-memory store.
func (s *EventStore) Close() error {
	return nil
}

func (s *EventStore) decode(records []*eventsourcing.StoredEvent) ([]*eventsourcing.Event, error) {
	events := make([]*eventsourcing.Event, 0, len(records))
	for _, record := range records {
		event, err := s.codec.DecodeStored(record)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func sortScan(records []*eventsourcing.StoredEvent) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Version < records[j].Version
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
