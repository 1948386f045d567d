package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/sourcing/pkg/eventsourcing"
)

const testAggregateType = "Shipment"

type shipmentBooked struct {
	Destination string `json:"destination"`
}

func (*shipmentBooked) EventType() string { return "shipping.Booked.v1" }
func (*shipmentBooked) EventKind() string { return "shipment.booked" }

type shipmentDelivered struct {
	SignedBy string `json:"signedBy"`
}

func (*shipmentDelivered) EventType() string { return "shipping.Delivered.v1" }
func (*shipmentDelivered) EventKind() string { return "shipment.delivered" }

func newTestCodec() *eventsourcing.Codec {
	return eventsourcing.NewCodec(eventsourcing.NewEventTypeRegistry(
		func() eventsourcing.EventPayload { return &shipmentBooked{} },
		func() eventsourcing.EventPayload { return &shipmentDelivered{} },
	), nil)
}

func newTestStore(t *testing.T) *EventStore {
	t.Helper()
	store, err := NewEventStore(newTestCodec(), WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func bookShipments(t *testing.T, store *EventStore, aggregateID string, fromVersion int64, destinations ...string) []*eventsourcing.Event {
	t.Helper()
	events := make([]*eventsourcing.Event, 0, len(destinations))
	for _, dest := range destinations {
		events = append(events, eventsourcing.NewEvent(&shipmentBooked{Destination: dest}))
	}
	require.NoError(t, store.Append(context.Background(), aggregateID, testAggregateType, events, fromVersion))
	return events
}

func TestEventStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	written := bookShipments(t, store, "s-1", 0, "AMS", "BER", "OSL")

	events, err := store.Load(ctx, "s-1", testAggregateType, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, event := range events {
		assert.Equal(t, written[i].ID, event.ID)
		assert.Equal(t, written[i].Kind, event.Kind)
		assert.Equal(t, written[i].Payload, event.Payload)
		assert.Equal(t, written[i].Timestamp.UTC(), event.Timestamp)
	}
}

func TestEventStore_LoadFromVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	bookShipments(t, store, "s-1", 0, "AMS", "BER", "OSL")

	events, err := store.Load(ctx, "s-1", testAggregateType, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, &shipmentBooked{Destination: "BER"}, events[0].Payload)
	assert.Equal(t, &shipmentBooked{Destination: "OSL"}, events[1].Payload)
}

func TestEventStore_MissingAggregateLoadsEmpty(t *testing.T) {
	store := newTestStore(t)
	events, err := store.Load(context.Background(), "ghost", testAggregateType, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventStore_AppendVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	bookShipments(t, store, "s-1", 0, "AMS", "BER")

	err := store.Append(ctx, "s-1", testAggregateType,
		[]*eventsourcing.Event{eventsourcing.NewEvent(&shipmentBooked{Destination: "OSL"})}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, eventsourcing.ErrConcurrencyConflict)

	var conflict *eventsourcing.ConcurrencyError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "s-1", conflict.AggregateID)
	assert.Equal(t, int64(1), conflict.Expected)
	assert.Equal(t, int64(2), conflict.Actual)

	// The losing append must leave nothing behind.
	events, err := store.Load(ctx, "s-1", testAggregateType, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestEventStore_AppendNothingSucceeds(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Append(context.Background(), "s-1", testAggregateType, nil, 42))
}

func TestEventStore_LoadAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	bookShipments(t, store, "s-1", 0, "AMS")
	bookShipments(t, store, "s-2", 0, "BER")

	events, err := store.LoadAll(ctx, testAggregateType, time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = store.LoadAll(ctx, testAggregateType, eventsourcing.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventStore_LoadByKind(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	bookShipments(t, store, "s-1", 0, "AMS")
	require.NoError(t, store.Append(ctx, "s-1", testAggregateType,
		[]*eventsourcing.Event{eventsourcing.NewEvent(&shipmentDelivered{SignedBy: "ann"})}, 1))

	events, err := store.LoadByKind(ctx, testAggregateType, "shipment.delivered")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, &shipmentDelivered{SignedBy: "ann"}, events[0].Payload)

	events, err = store.LoadByKind(ctx, testAggregateType, "shipment.booked", "shipment.delivered")
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = store.LoadByKind(ctx, testAggregateType)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventStore_ListAggregateIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	bookShipments(t, store, "s-2", 0, "AMS")
	bookShipments(t, store, "s-1", 0, "BER", "OSL")
	bookShipments(t, store, "s-3", 0, "HEL")

	ids, total, err := store.ListAggregateIDs(ctx, testAggregateType, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"s-1", "s-2"}, ids)

	ids, total, err = store.ListAggregateIDs(ctx, testAggregateType, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"s-3"}, ids)

	// limit <= 0 pages through everything.
	ids, _, err = store.ListAggregateIDs(ctx, testAggregateType, 0, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestSnapshotStore_UpsertAndGetLatest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	snapshots := NewSnapshotStore(store.DB())

	_, err := snapshots.GetLatest(ctx, "s-1", testAggregateType)
	assert.ErrorIs(t, err, eventsourcing.ErrSnapshotNotFound)

	createdAt := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	for version := int64(2); version <= 6; version += 2 {
		require.NoError(t, snapshots.Save(ctx, &eventsourcing.Snapshot{
			AggregateID:   "s-1",
			AggregateType: testAggregateType,
			Version:       version,
			CreatedAt:     createdAt,
			Data:          []byte{byte(version)},
		}))
	}

	snap, err := snapshots.GetLatest(ctx, "s-1", testAggregateType)
	require.NoError(t, err)
	assert.Equal(t, int64(6), snap.Version)
	assert.Equal(t, []byte{6}, snap.Data)
	assert.Equal(t, createdAt, snap.CreatedAt)
}

func TestProvider_Lifecycle(t *testing.T) {
	ctx := context.Background()
	provider := NewProvider(newTestCodec(), WithMemoryDatabase())

	require.NoError(t, provider.ValidateConfiguration())
	require.NoError(t, provider.Initialize(ctx, []string{testAggregateType}))

	eventStore, err := provider.CreateEventStore()
	require.NoError(t, err)
	snapshotStore, err := provider.CreateSnapshotStore()
	require.NoError(t, err)

	require.NoError(t, eventStore.Append(ctx, "s-1", testAggregateType,
		[]*eventsourcing.Event{eventsourcing.NewEvent(&shipmentBooked{Destination: "AMS"})}, 0))
	require.NoError(t, snapshotStore.Save(ctx, &eventsourcing.Snapshot{
		AggregateID:   "s-1",
		AggregateType: testAggregateType,
		Version:       1,
		CreatedAt:     eventsourcing.Now().UTC(),
		Data:          []byte(`{}`),
	}))

	require.NoError(t, provider.Close())
}

func TestProvider_ValidateConfiguration(t *testing.T) {
	assert.Error(t, NewProvider(nil).ValidateConfiguration())
	assert.Error(t, NewProvider(newTestCodec(), WithDSN("")).ValidateConfiguration())
	assert.Error(t, NewProvider(newTestCodec(), WithMaxOpenConns(0)).ValidateConfiguration())
	assert.NoError(t, NewProvider(newTestCodec(), WithMemoryDatabase()).ValidateConfiguration())
}
