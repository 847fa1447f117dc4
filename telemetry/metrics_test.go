package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel/sdk/metric"
)

func testRegistry(t *testing.T, retention time.Duration) *Registry {
	t.Helper()
	mp := metric.NewMeterProvider()
	return NewRegistry("cache", mp.Meter("test"), retention)
}

func TestRegistry_CounterRecordsSnapshot(t *testing.T) {
	r := testRegistry(t, 0)
	ctx := context.Background()

	require.NoError(t, r.Counter(ctx, "cache.hits", 1, Label{Key: "scope", Value: "s1"}))
	require.NoError(t, r.Counter(ctx, "cache.hits", 2))

	snap, ok := r.Snapshot("cache.hits")
	require.True(t, ok)
	assert.Equal(t, "counter", snap.Kind)
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, 3.0, snap.Sum)
	assert.Equal(t, "s1", snap.Samples[0].Tags["scope"])
	assert.Equal(t, "cache", snap.Samples[0].Tags["component"])
}

func TestRegistry_GaugeAndHistogramRecord(t *testing.T) {
	r := testRegistry(t, 0)
	ctx := context.Background()

	require.NoError(t, r.Gauge(ctx, "cache.queue_depth", 5))
	require.NoError(t, r.Histogram(ctx, "cache.latency_ms", 12.5))
	require.NoError(t, r.RecordDuration(ctx, "cache.op_duration", 50*time.Millisecond))

	gaugeSnap, ok := r.Snapshot("cache.queue_depth")
	require.True(t, ok)
	assert.Equal(t, "gauge", gaugeSnap.Kind)
	assert.Equal(t, 5.0, gaugeSnap.Last)

	histSnap, ok := r.Snapshot("cache.latency_ms")
	require.True(t, ok)
	assert.Equal(t, "histogram", histSnap.Kind)
	assert.Equal(t, 12.5, histSnap.Last)

	durSnap, ok := r.Snapshot("cache.op_duration")
	require.True(t, ok)
	assert.Equal(t, 50.0, durSnap.Last)
}

func TestRegistry_SnapshotMissingNameReturnsFalse(t *testing.T) {
	r := testRegistry(t, 0)
	_, ok := r.Snapshot("does.not.exist")
	assert.False(t, ok)
}

func TestRegistry_RetentionEvictsOldSamples(t *testing.T) {
	r := testRegistry(t, 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, r.Counter(ctx, "cache.hits", 1))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Counter(ctx, "cache.hits", 1))

	snap, ok := r.Snapshot("cache.hits")
	require.True(t, ok)
	assert.Equal(t, 1, snap.Count, "the first sample should have been evicted by retention")
}

func TestRegistry_NamesListsEverySeries(t *testing.T) {
	r := testRegistry(t, 0)
	ctx := context.Background()
	require.NoError(t, r.Counter(ctx, "a", 1))
	require.NoError(t, r.Histogram(ctx, "b", 1))

	assert.Equal(t, []string{"a", "b"}, r.Names())
}
