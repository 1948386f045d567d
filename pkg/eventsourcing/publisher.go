package eventsourcing

import (
	"context"
	"errors"
	"fmt"
)

// EventPublisher delivers successfully appended events to interested
// consumers. Publication is outside the durability boundary: a failure is
// reported but never undoes the append, and delivery is at-least-once, so
// handlers are expected to be idempotent.
type EventPublisher interface {
	// Publish delivers events for an aggregate to all consumers.
	Publish(ctx context.Context, aggregateID, aggregateType string, events []*Event) error
}

// PublishHandler processes a published event.
type PublishHandler func(ctx context.Context, aggregateID, aggregateType string, event *Event) error

// FanOutPublisher dispatches events to handlers registered per event kind,
// plus any catch-all handlers. Registration tables are built explicitly at
// startup; there is no runtime type scanning.
type FanOutPublisher struct {
	byKind   map[string][]PublishHandler
	catchAll []PublishHandler
}

// NewFanOutPublisher creates an empty fan-out publisher.
func NewFanOutPublisher() *FanOutPublisher {
	return &FanOutPublisher{byKind: make(map[string][]PublishHandler)}
}

// On registers a handler for a specific event kind.
func (p *FanOutPublisher) On(kind string, handler PublishHandler) *FanOutPublisher {
	p.byKind[kind] = append(p.byKind[kind], handler)
	return p
}

// OnAll registers a handler for every event.
func (p *FanOutPublisher) OnAll(handler PublishHandler) *FanOutPublisher {
	p.catchAll = append(p.catchAll, handler)
	return p
}

// Publish calls every matching handler for every event, collecting failures
// rather than stopping at the first one.
func (p *FanOutPublisher) Publish(ctx context.Context, aggregateID, aggregateType string, events []*Event) error {
	var errs []error
	for _, event := range events {
		for _, handler := range p.byKind[event.Kind] {
			if err := handler(ctx, aggregateID, aggregateType, event); err != nil {
				errs = append(errs, fmt.Errorf("handler for kind %s failed on event %s: %w", event.Kind, event.ID, err))
			}
		}
		for _, handler := range p.catchAll {
			if err := handler(ctx, aggregateID, aggregateType, event); err != nil {
				errs = append(errs, fmt.Errorf("handler failed on event %s: %w", event.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}
