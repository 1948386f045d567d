package eventsourcing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpcasterRegistry_ChainEqualsManualComposition(t *testing.T) {
	registry := NewUpcasterRegistry(upcastNoteV1ToV2(), upcastNoteV2ToV3())

	original := &noteAddedV1{Text: "hello"}

	// Manual composition of the two single-step upcasters.
	intermediate, err := upcastNoteV1ToV2().Transform(original)
	require.NoError(t, err)
	expected, err := upcastNoteV2ToV3().Transform(intermediate)
	require.NoError(t, err)

	chained, err := registry.Upcast(&noteAddedV1{Text: "hello"})
	require.NoError(t, err)

	assert.Equal(t, expected, chained)
	assert.Equal(t, "test.NoteAdded.v3", chained.EventType())
	assert.Equal(t, &noteAddedV3{Text: "hello", Author: "unknown", Language: "en"}, chained)
}

func TestUpcasterRegistry_IntermediateVersionJoinsChain(t *testing.T) {
	registry := NewUpcasterRegistry(upcastNoteV1ToV2(), upcastNoteV2ToV3())

	result, err := registry.Upcast(&noteAddedV2{Text: "hi", Author: "ann"})
	require.NoError(t, err)
	assert.Equal(t, &noteAddedV3{Text: "hi", Author: "ann", Language: "en"}, result)
}

func TestUpcasterRegistry_NoUpcasterIsPassthrough(t *testing.T) {
	registry := NewUpcasterRegistry()

	payload := &noteAddedV3{Text: "done", Author: "bob", Language: "de"}
	result, err := registry.Upcast(payload)
	require.NoError(t, err)
	assert.Same(t, payload, result)
}

func TestUpcasterRegistry_CyclicRegistrationIsDetected(t *testing.T) {
	registry := NewUpcasterRegistry(
		Upcaster{
			SourceType: "test.Cycle.a",
			TargetType: "test.Cycle.b",
			Transform: func(EventPayload) (EventPayload, error) {
				return &cycleB{}, nil
			},
		},
		Upcaster{
			SourceType: "test.Cycle.b",
			TargetType: "test.Cycle.a",
			Transform: func(EventPayload) (EventPayload, error) {
				return &cycleA{}, nil
			},
		},
	)

	_, err := registry.Upcast(&cycleA{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpcastChainTooLong)
}

func TestUpcasterRegistry_Has(t *testing.T) {
	registry := NewUpcasterRegistry(upcastNoteV1ToV2())

	assert.True(t, registry.Has("test.NoteAdded.v1"))
	assert.False(t, registry.Has("test.NoteAdded.v2"))
}
