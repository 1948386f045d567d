package eventsourcing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventPayload is implemented by every concrete event type.
//
// EventType is the concrete schema name (e.g. "ordering.ItemAdded.v2") and
// changes whenever the schema changes. EventKind is the stable category tag
// (e.g. "order.item_added") and never changes across schema versions. Both
// are declared explicitly by the event author rather than derived from the
// Go type name.
type EventPayload interface {
	// EventType returns the concrete schema name of this event.
	EventType() string

	// EventKind returns the stable category tag of this event.
	EventKind() string
}

// Event represents a domain event that has occurred in the system.
// Events are immutable facts about state changes.
type Event struct {
	// ID is the unique identifier for this event
	ID string

	// Type is the concrete schema name, captured from the payload at construction
	Type string

	// Kind is the stable category tag, captured from the payload at construction
	Kind string

	// Timestamp is when the event was created (UTC)
	Timestamp time.Time

	// Payload is the typed event payload
	Payload EventPayload
}

// NewEvent constructs an event around the given payload. Type and Kind are
// taken from the payload once, here, and never change afterwards.
func NewEvent(payload EventPayload) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      payload.EventType(),
		Kind:      payload.EventKind(),
		Timestamp: Now().UTC(),
		Payload:   payload,
	}
}

// StoredEvent is the persisted form of an event within an aggregate stream.
// The pair (AggregateID, Version) is unique and versions form a contiguous
// sequence starting at 1; this is the sole concurrency-control mechanism.
type StoredEvent struct {
	AggregateID   string
	AggregateType string
	Version       int64
	EventID       string
	EventType     string
	Kind          string
	Timestamp     time.Time
	Data          []byte
}

// EventStore defines the interface for persisting and retrieving events.
//
// Implementations decode stored payloads through an EventTypeRegistry and
// run them through an UpcasterRegistry on every read path, so callers never
// see a pre-upcast event.
type EventStore interface {
	// Append appends events to an aggregate's stream as consecutive records
	// with versions expectedVersion+1 .. expectedVersion+len(events).
	// Returns a *ConcurrencyError (matching ErrConcurrencyConflict) if the
	// current highest stored version doesn't equal expectedVersion.
	// Appending zero events is a no-op that succeeds trivially.
	Append(ctx context.Context, aggregateID, aggregateType string, events []*Event, expectedVersion int64) error

	// Load loads events for an aggregate with version > fromVersion, ordered
	// by version ascending. A never-written aggregate yields an empty slice.
	Load(ctx context.Context, aggregateID, aggregateType string, fromVersion int64) ([]*Event, error)

	// LoadAll loads all events for an aggregate type, ordered by timestamp
	// then version. A zero since time means no lower bound. This is a full
	// scan intended for projection building and audit.
	LoadAll(ctx context.Context, aggregateType string, since time.Time) ([]*Event, error)

	// LoadByKind loads all events of the given kinds for an aggregate type,
	// ordered by timestamp then version. Full scan, like LoadAll.
	LoadByKind(ctx context.Context, aggregateType string, kinds ...string) ([]*Event, error)

	// ListAggregateIDs returns a page of distinct aggregate IDs for a type
	// together with the total number of distinct IDs.
	ListAggregateIDs(ctx context.Context, aggregateType string, offset, limit int) ([]string, int64, error)

	// Close closes the event store and releases resources.
	Close() error
}

// Envelope is the external-consumption form of an event: the payload data
// excludes the envelope metadata fields to avoid duplication over an API
// boundary.
type Envelope struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Data      []byte    `json:"data"`
}

// NewEnvelope builds the external envelope for an event using the given
// codec to serialize the payload.
func NewEnvelope(event *Event, codec *Codec) (*Envelope, error) {
	data, err := codec.Marshal(event.Payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EventID:   event.ID,
		EventType: event.Type,
		Kind:      event.Kind,
		Timestamp: event.Timestamp,
		Data:      data,
	}, nil
}
