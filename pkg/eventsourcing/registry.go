package eventsourcing

import (
	"encoding/json"
	"fmt"
	"sort"
)

// EventTypeRegistry maps event type names to payload factories. A registry
// is constructed once at startup with every payload type the application
// uses and is read-only afterwards, so multiple configurations can coexist
// in tests.
type EventTypeRegistry struct {
	factories map[string]func() EventPayload
}

// NewEventTypeRegistry creates a registry from payload factories. Each
// factory is registered under the EventType of the payload it produces.
func NewEventTypeRegistry(factories ...func() EventPayload) *EventTypeRegistry {
	r := &EventTypeRegistry{
		factories: make(map[string]func() EventPayload, len(factories)),
	}
	for _, factory := range factories {
		r.factories[factory().EventType()] = factory
	}
	return r
}

// New creates an empty instance of the payload registered under eventType.
func (r *EventTypeRegistry) New(eventType string) (EventPayload, error) {
	factory, ok := r.factories[eventType]
	if !ok {
		return nil, &UnregisteredEventTypeError{EventType: eventType}
	}
	return factory(), nil
}

// IsRegistered returns true if an event type is registered.
func (r *EventTypeRegistry) IsRegistered(eventType string) bool {
	_, ok := r.factories[eventType]
	return ok
}

// Types returns all registered event type names, sorted.
func (r *EventTypeRegistry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Codec serializes event payloads to a self-describing JSON form keyed by
// the registered type name, and decodes them back into their concrete
// types, running every decoded payload through the upcaster registry so
// callers never see a pre-upcast event.
type Codec struct {
	registry  *EventTypeRegistry
	upcasters *UpcasterRegistry
}

// NewCodec creates a codec over the given registries. upcasters may be nil
// when no schema migration is needed.
func NewCodec(registry *EventTypeRegistry, upcasters *UpcasterRegistry) *Codec {
	if upcasters == nil {
		upcasters = NewUpcasterRegistry()
	}
	return &Codec{registry: registry, upcasters: upcasters}
}

// Marshal serializes a payload to JSON.
func (c *Codec) Marshal(payload EventPayload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload %s: %w", payload.EventType(), err)
	}
	return data, nil
}

// Unmarshal decodes the stored payload registered under eventType and
// promotes it to the latest schema version.
func (c *Codec) Unmarshal(eventType string, data []byte) (EventPayload, error) {
	payload, err := c.registry.New(eventType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event payload %s: %w", eventType, err)
	}
	return c.upcasters.Upcast(payload)
}

// DecodeStored converts a stored record back into an engine event. The
// event carries the upcast payload but keeps the stored identity fields
// (ID, Kind, Timestamp) untouched.
func (c *Codec) DecodeStored(record *StoredEvent) (*Event, error) {
	payload, err := c.Unmarshal(record.EventType, record.Data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        record.EventID,
		Type:      payload.EventType(),
		Kind:      record.Kind,
		Timestamp: record.Timestamp,
		Payload:   payload,
	}, nil
}

// EncodeStored converts an engine event into its stored record form at the
// given stream position.
func (c *Codec) EncodeStored(event *Event, aggregateID, aggregateType string, version int64) (*StoredEvent, error) {
	data, err := c.Marshal(event.Payload)
	if err != nil {
		return nil, err
	}
	return &StoredEvent{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		EventID:       event.ID,
		EventType:     event.Type,
		Kind:          event.Kind,
		Timestamp:     event.Timestamp,
		Data:          data,
	}, nil
}
