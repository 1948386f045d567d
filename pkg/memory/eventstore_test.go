package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/sourcing/pkg/eventsourcing"
)

const testAggregateType = "Meter"

type readingTaken struct {
	Value int64 `json:"value"`
}

func (*readingTaken) EventType() string { return "meter.ReadingTaken.v1" }
func (*readingTaken) EventKind() string { return "meter.reading" }

type meterReset struct{}

func (*meterReset) EventType() string { return "meter.Reset.v1" }
func (*meterReset) EventKind() string { return "meter.reset" }

func newTestStore() *EventStore {
	codec := eventsourcing.NewCodec(eventsourcing.NewEventTypeRegistry(
		func() eventsourcing.EventPayload { return &readingTaken{} },
		func() eventsourcing.EventPayload { return &meterReset{} },
	), nil)
	return NewEventStore(codec)
}

func appendReadings(t *testing.T, store *EventStore, aggregateID string, fromVersion int64, values ...int64) []*eventsourcing.Event {
	t.Helper()
	events := make([]*eventsourcing.Event, 0, len(values))
	for _, v := range values {
		events = append(events, eventsourcing.NewEvent(&readingTaken{Value: v}))
	}
	require.NoError(t, store.Append(context.Background(), aggregateID, testAggregateType, events, fromVersion))
	return events
}

func TestEventStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	written := appendReadings(t, store, "m-1", 0, 10, 20, 30)

	events, err := store.Load(ctx, "m-1", testAggregateType, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, event := range events {
		assert.Equal(t, written[i].ID, event.ID)
		assert.Equal(t, "meter.ReadingTaken.v1", event.Type)
		assert.Equal(t, "meter.reading", event.Kind)
		assert.Equal(t, written[i].Payload, event.Payload)
	}
}

func TestEventStore_LoadFromVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	appendReadings(t, store, "m-1", 0, 10, 20, 30)

	events, err := store.Load(ctx, "m-1", testAggregateType, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, &readingTaken{Value: 30}, events[0].Payload)
}

func TestEventStore_AppendVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	appendReadings(t, store, "m-1", 0, 10, 20)

	err := store.Append(ctx, "m-1", testAggregateType,
		[]*eventsourcing.Event{eventsourcing.NewEvent(&readingTaken{Value: 30})}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, eventsourcing.ErrConcurrencyConflict)

	var conflict *eventsourcing.ConcurrencyError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(1), conflict.Expected)
	assert.Equal(t, int64(2), conflict.Actual)
}

func TestEventStore_AppendNothingSucceeds(t *testing.T) {
	store := newTestStore()
	// Even at a stale expected version: zero events means zero writes.
	require.NoError(t, store.Append(context.Background(), "m-1", testAggregateType, nil, 99))
}

func TestEventStore_MissingAggregateLoadsEmpty(t *testing.T) {
	store := newTestStore()
	events, err := store.Load(context.Background(), "ghost", testAggregateType, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventStore_LoadAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	appendReadings(t, store, "m-1", 0, 10)
	appendReadings(t, store, "m-2", 0, 20)

	events, err := store.LoadAll(ctx, testAggregateType, time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	cutoff := eventsourcing.Now().Add(time.Hour)
	events, err = store.LoadAll(ctx, testAggregateType, cutoff)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventStore_LoadByKind(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	appendReadings(t, store, "m-1", 0, 10)
	require.NoError(t, store.Append(ctx, "m-1", testAggregateType,
		[]*eventsourcing.Event{eventsourcing.NewEvent(&meterReset{})}, 1))

	events, err := store.LoadByKind(ctx, testAggregateType, "meter.reset")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "meter.reset", events[0].Kind)
}

func TestEventStore_ListAggregateIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	appendReadings(t, store, "m-3", 0, 1)
	appendReadings(t, store, "m-1", 0, 1, 2)
	appendReadings(t, store, "m-2", 0, 1)

	ids, total, err := store.ListAggregateIDs(ctx, testAggregateType, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"m-1", "m-2"}, ids)

	ids, total, err = store.ListAggregateIDs(ctx, testAggregateType, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"m-3"}, ids)

	ids, _, err = store.ListAggregateIDs(ctx, testAggregateType, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSnapshotStore_LatestWins(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	_, err := store.GetLatest(ctx, "m-1", testAggregateType)
	assert.ErrorIs(t, err, eventsourcing.ErrSnapshotNotFound)

	for version := int64(1); version <= 3; version++ {
		require.NoError(t, store.Save(ctx, &eventsourcing.Snapshot{
			AggregateID:   "m-1",
			AggregateType: testAggregateType,
			Version:       version,
			CreatedAt:     eventsourcing.Now().UTC(),
			Data:          []byte{byte(version)},
		}))
	}

	snap, err := store.GetLatest(ctx, "m-1", testAggregateType)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Version)
	assert.Equal(t, []byte{3}, snap.Data)
}

func TestProvider(t *testing.T) {
	ctx := context.Background()
	codec := eventsourcing.NewCodec(eventsourcing.NewEventTypeRegistry(
		func() eventsourcing.EventPayload { return &readingTaken{} },
	), nil)
	provider := NewProvider(codec)

	require.NoError(t, provider.ValidateConfiguration())
	require.NoError(t, provider.Initialize(ctx, []string{testAggregateType}))

	eventStore, err := provider.CreateEventStore()
	require.NoError(t, err)
	again, err := provider.CreateEventStore()
	require.NoError(t, err)
	assert.Same(t, eventStore, again)

	snapshotStore, err := provider.CreateSnapshotStore()
	require.NoError(t, err)
	assert.NotNil(t, snapshotStore)

	require.NoError(t, provider.Close())
}
