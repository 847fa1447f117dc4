package rhema

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-sub012/config"
)

func TestNew_BuildsEveryComponentWithDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Proactive.WarmingInterval = 5 * time.Millisecond

	k, err := New(context.Background(), cfg, nil, Dependencies{})
	require.NoError(t, err)

	assert.NotNil(t, k.Safety)
	assert.NotNil(t, k.Coordinator)
	assert.NotNil(t, k.Cache)
	assert.NotNil(t, k.Search)
	assert.NotNil(t, k.Proactive)
	assert.NotNil(t, k.Pattern)
	assert.NotNil(t, k.Synthesis)
	assert.NotNil(t, k.Telemetry)
	assert.NotNil(t, k.CircuitBreaker)
	assert.Len(t, k.Metrics, 6)

	require.NoError(t, k.Close(context.Background()))
}

func TestKernel_StartAndCloseStopsBackgroundLoopsCleanly(t *testing.T) {
	cfg := config.Default()
	cfg.Proactive.WarmingInterval = 5 * time.Millisecond
	cfg.Pattern.MetricsIntervalSeconds = 1

	k, err := New(context.Background(), cfg, nil, Dependencies{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	k.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()

	require.NoError(t, k.Close(context.Background()))
}

func TestKernel_SnapshotReflectsRegisteredAgent(t *testing.T) {
	k, err := New(context.Background(), config.Default(), nil, Dependencies{})
	require.NoError(t, err)
	defer k.Close(context.Background())

	require.NoError(t, k.Coordinator.RegisterAgent("agent-1", nil))

	snap := k.Snapshot()
	_, ok := snap.Agents["agent-1"]
	assert.True(t, ok)
}
