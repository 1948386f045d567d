package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			found[m.Name] = m
		}
	}
	return found
}

func counterValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum data for %s", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_Record(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(ctx) })

	metrics, err := NewMetrics(provider.Meter("sourcing-test"))
	require.NoError(t, err)

	metrics.RecordLoad(ctx, "Order", 20*time.Millisecond)
	metrics.RecordSave(ctx, "Order", 3, 10*time.Millisecond)
	metrics.RecordPublished(ctx, "Order", 3)
	metrics.RecordSnapshotHit(ctx, "Order")
	metrics.RecordSnapshotMiss(ctx, "Order")
	metrics.RecordSnapshotWritten(ctx, "Order")
	metrics.RecordConflict(ctx, "Order")

	found := collect(t, reader)
	assert.Equal(t, int64(1), counterValue(t, found["sourcing.repository.loads"]))
	assert.Equal(t, int64(1), counterValue(t, found["sourcing.repository.saves"]))
	assert.Equal(t, int64(3), counterValue(t, found["sourcing.events.appended"]))
	assert.Equal(t, int64(3), counterValue(t, found["sourcing.events.published"]))
	assert.Equal(t, int64(1), counterValue(t, found["sourcing.snapshot.hits"]))
	assert.Equal(t, int64(1), counterValue(t, found["sourcing.snapshot.misses"]))
	assert.Equal(t, int64(1), counterValue(t, found["sourcing.snapshot.written"]))
	assert.Equal(t, int64(1), counterValue(t, found["sourcing.concurrency.conflicts"]))

	durations, ok := found["sourcing.repository.save.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, durations.DataPoints, 1)
	assert.Equal(t, uint64(1), durations.DataPoints[0].Count)
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	ctx := context.Background()
	var metrics *Metrics

	assert.NotPanics(t, func() {
		metrics.RecordLoad(ctx, "Order", time.Millisecond)
		metrics.RecordSave(ctx, "Order", 1, time.Millisecond)
		metrics.RecordPublished(ctx, "Order", 1)
		metrics.RecordSnapshotHit(ctx, "Order")
		metrics.RecordSnapshotMiss(ctx, "Order")
		metrics.RecordSnapshotWritten(ctx, "Order")
		metrics.RecordConflict(ctx, "Order")
	})
}
