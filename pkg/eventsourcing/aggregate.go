package eventsourcing

// Aggregate defines the interface that all aggregates must implement.
//
// Event application is an explicit type switch in ApplyEvent over the
// aggregate's event payloads, which keeps replay exhaustive and checkable
// at compile time.
type Aggregate interface {
	// ID returns the unique identifier of the aggregate.
	ID() string

	// Type returns the type name of the aggregate.
	Type() string

	// Version returns the number of events durably applied to this instance.
	Version() int64

	// ApplyEvent applies an event to the aggregate's state. Replay is
	// deterministic and must not trigger any external I/O.
	ApplyEvent(event *Event) error

	// UncommittedEvents returns events that have been raised but not yet persisted.
	UncommittedEvents() []*Event

	// ClearUncommittedEvents clears the uncommitted events after they've been persisted.
	ClearUncommittedEvents()

	// SetVersion sets the durable version. Called by the repository during
	// replay and after a successful append; application code should never
	// call it.
	SetVersion(version int64)
}

// AggregateRoot provides base functionality for all aggregates.
// Use this as an embedded type in your aggregate implementations.
type AggregateRoot struct {
	id                string
	aggregateType     string
	version           int64
	uncommittedEvents []*Event
}

// NewAggregateRoot creates a new aggregate root with the given ID and type.
func NewAggregateRoot(id, aggregateType string) AggregateRoot {
	return AggregateRoot{
		id:                id,
		aggregateType:     aggregateType,
		version:           0,
		uncommittedEvents: make([]*Event, 0),
	}
}

// ID returns the aggregate's unique identifier.
func (a *AggregateRoot) ID() string {
	return a.id
}

// Type returns the aggregate's type name.
func (a *AggregateRoot) Type() string {
	return a.aggregateType
}

// Version returns the aggregate's durable version. It counts only events
// that were replayed or successfully appended; raising an event does not
// advance it.
func (a *AggregateRoot) Version() int64 {
	return a.version
}

// SetVersion sets the durable version.
func (a *AggregateRoot) SetVersion(version int64) {
	a.version = version
}

// UncommittedEvents returns events that haven't been persisted yet.
func (a *AggregateRoot) UncommittedEvents() []*Event {
	return a.uncommittedEvents
}

// ClearUncommittedEvents clears the uncommitted events list.
func (a *AggregateRoot) ClearUncommittedEvents() {
	a.uncommittedEvents = make([]*Event, 0)
}

// Record wraps the payload in a new event and adds it to the uncommitted
// list. The aggregate's state transition for the payload must be applied by
// the caller (conventionally the command method calls Record and then its
// own apply function), and the version advances only once the event is
// durably appended.
func (a *AggregateRoot) Record(payload EventPayload) *Event {
	evt := NewEvent(payload)
	a.uncommittedEvents = append(a.uncommittedEvents, evt)
	return evt
}
