// Package nats provides a JetStream-backed event publisher.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plaenen/sourcing/pkg/eventsourcing"
)

// Publisher publishes appended events to NATS JetStream. Delivery is
// at-least-once; the event ID doubles as the JetStream message ID so
// redeliveries deduplicate.
type Publisher struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	codec      *eventsourcing.Codec
	streamName string
	ownedConn  bool
}

// Config holds configuration for the NATS publisher.
type Config struct {
	// URL is the NATS server URL
	URL string

	// StreamName is the JetStream stream name for events
	StreamName string

	// StreamSubjects are the subjects the stream captures (default: "events.>")
	StreamSubjects []string

	// MaxAge is how long to retain events in the stream
	MaxAge time.Duration

	// MaxBytes is the maximum bytes the stream can store
	MaxBytes int64
}

// DefaultConfig returns sensible defaults for the publisher.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		StreamName:     "EVENTS",
		StreamSubjects: []string{"events.>"},
		MaxAge:         7 * 24 * time.Hour,
		MaxBytes:       1024 * 1024 * 1024, // 1 GB
	}
}

// NewPublisher connects to NATS and ensures the stream exists.
func NewPublisher(cfg Config, codec *eventsourcing.Codec) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p, err := newPublisher(nc, cfg, codec)
	if err != nil {
		nc.Close()
		return nil, err
	}
	p.ownedConn = true
	return p, nil
}

// NewPublisherWithConn builds a publisher over an existing connection,
// which stays owned by the caller.
func NewPublisherWithConn(nc *nats.Conn, cfg Config, codec *eventsourcing.Codec) (*Publisher, error) {
	return newPublisher(nc, cfg, codec)
}

func newPublisher(nc *nats.Conn, cfg Config, codec *eventsourcing.Codec) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &Publisher{
		nc:         nc,
		js:         js,
		codec:      codec,
		streamName: cfg.StreamName,
	}
	if err := p.ensureStream(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}
	return p, nil
}

func (p *Publisher) ensureStream(cfg Config) error {
	streamConfig := &nats.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  cfg.StreamSubjects,
		Retention: nats.LimitsPolicy,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	stream, err := p.js.StreamInfo(cfg.StreamName)
	if err != nil {
		_, err = p.js.AddStream(streamConfig)
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		return nil
	}

	if stream.Config.MaxAge != cfg.MaxAge || stream.Config.MaxBytes != cfg.MaxBytes {
		_, err = p.js.UpdateStream(streamConfig)
		if err != nil {
			return fmt.Errorf("failed to update stream: %w", err)
		}
	}
	return nil
}

// Publish sends each event's envelope to events.<aggregateType>.<kind>.
func (p *Publisher) Publish(ctx context.Context, aggregateID, aggregateType string, events []*eventsourcing.Event) error {
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		envelope, err := eventsourcing.NewEnvelope(event, p.codec)
		if err != nil {
			return fmt.Errorf("failed to build envelope for event %s: %w", event.ID, err)
		}
		data, err := json.Marshal(envelope)
		if err != nil {
			return fmt.Errorf("failed to serialize envelope for event %s: %w", event.ID, err)
		}

		subject := fmt.Sprintf("events.%s.%s", aggregateType, event.Kind)
		_, err = p.js.Publish(subject, data, nats.MsgId(event.ID), nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
		}
	}
	return nil
}

// Close closes the connection if the publisher owns it.
func (p *Publisher) Close() error {
	if p.ownedConn {
		p.nc.Close()
	}
	return nil
}
