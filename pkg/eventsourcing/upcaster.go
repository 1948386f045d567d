package eventsourcing

import "fmt"

// MaxUpcastChain bounds how many upcasting steps a single event may go
// through. Exceeding it means a misconfigured registry (e.g. a cycle) and
// surfaces as ErrUpcastChainTooLong instead of hanging.
const MaxUpcastChain = 100

// Upcaster transforms an event payload from one schema version to the next.
// Authors write independent single-step upcasters (V1→V2, V2→V3); the
// registry performs the chaining, so a direct V1→V3 upcaster is never
// needed.
type Upcaster struct {
	// SourceType is the exact event type name this upcaster consumes.
	SourceType string

	// TargetType is the event type name this upcaster produces.
	TargetType string

	// Transform converts the payload. It must be pure.
	Transform func(payload EventPayload) (EventPayload, error)
}

// UpcasterRegistry maps source event types to upcasters. It is populated at
// startup and read-only thereafter.
type UpcasterRegistry struct {
	byType map[string]Upcaster
}

// NewUpcasterRegistry creates a registry from the given upcasters, keyed by
// their exact source type.
func NewUpcasterRegistry(upcasters ...Upcaster) *UpcasterRegistry {
	r := &UpcasterRegistry{byType: make(map[string]Upcaster, len(upcasters))}
	for _, u := range upcasters {
		r.byType[u.SourceType] = u
	}
	return r
}

// Upcast promotes a freshly deserialized payload to the latest schema
// version by repeatedly applying the upcaster registered for its current
// type until none is registered.
func (r *UpcasterRegistry) Upcast(payload EventPayload) (EventPayload, error) {
	for i := 0; i < MaxUpcastChain; i++ {
		u, ok := r.byType[payload.EventType()]
		if !ok {
			return payload, nil
		}
		next, err := u.Transform(payload)
		if err != nil {
			return nil, fmt.Errorf("upcasting %s to %s: %w", u.SourceType, u.TargetType, err)
		}
		payload = next
	}
	return nil, fmt.Errorf("%w: gave up after %d steps starting from %s (cyclic registration?)",
		ErrUpcastChainTooLong, MaxUpcastChain, payload.EventType())
}

// Has returns true if an upcaster is registered for the given source type.
func (r *UpcasterRegistry) Has(sourceType string) bool {
	_, ok := r.byType[sourceType]
	return ok
}
