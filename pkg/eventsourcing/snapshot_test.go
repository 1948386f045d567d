package eventsourcing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequencyStrategy(t *testing.T) {
	strategy, err := NewFrequencyStrategy(3)
	require.NoError(t, err)

	assert.False(t, strategy.ShouldSnapshot(nil, 2, nil))
	assert.True(t, strategy.ShouldSnapshot(nil, 3, nil))
	assert.True(t, strategy.ShouldSnapshot(nil, 7, nil))
}

func TestFrequencyStrategy_RejectsNonPositive(t *testing.T) {
	for _, n := range []int64{0, -1} {
		_, err := NewFrequencyStrategy(n)
		assert.ErrorIs(t, err, ErrInvalidStrategy)
	}
}

func TestIntervalStrategy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	TimeFunc = func() time.Time { return now }
	defer func() { TimeFunc = time.Now }()

	strategy, err := NewIntervalStrategy(time.Hour)
	require.NoError(t, err)

	t.Run("no prior snapshot", func(t *testing.T) {
		assert.True(t, strategy.ShouldSnapshot(nil, 1, nil))
	})

	t.Run("recent snapshot", func(t *testing.T) {
		last := now.Add(-30 * time.Minute)
		assert.False(t, strategy.ShouldSnapshot(nil, 1, &last))
	})

	t.Run("stale snapshot", func(t *testing.T) {
		last := now.Add(-2 * time.Hour)
		assert.True(t, strategy.ShouldSnapshot(nil, 1, &last))
	})
}

func TestIntervalStrategy_RejectsNonPositive(t *testing.T) {
	_, err := NewIntervalStrategy(0)
	assert.ErrorIs(t, err, ErrInvalidStrategy)
}

func TestStrategyFunc(t *testing.T) {
	var sawEvents int64
	strategy := StrategyFunc(func(_ Aggregate, eventsSinceSnapshot int64, _ *time.Time) bool {
		sawEvents = eventsSinceSnapshot
		return eventsSinceSnapshot%2 == 0
	})

	assert.True(t, strategy.ShouldSnapshot(nil, 4, nil))
	assert.Equal(t, int64(4), sawEvents)
	assert.False(t, strategy.ShouldSnapshot(nil, 5, nil))
}
