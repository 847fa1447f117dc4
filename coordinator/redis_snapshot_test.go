package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-sub012/config"
	"github.com/fugue-ai/rhema-sub012/rhlog"
)

func newTestSnapshotStore(t *testing.T) *RedisSnapshotStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisSnapshotStore("redis://"+mr.Addr(), "rhema-test", time.Minute, rhlog.NoOpLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisSnapshotStore_SaveThenLoadRoundTrips(t *testing.T) {
	s := newTestSnapshotStore(t)
	coord := New(config.Default(), rhlog.NoOpLogger{})
	require.NoError(t, coord.RegisterAgent("agent-1", nil))

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, coord.Snapshot()))

	loaded, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	_, present := loaded.Agents["agent-1"]
	assert.True(t, present)
}

func TestRedisSnapshotStore_LoadWithNothingSavedReturnsFalse(t *testing.T) {
	s := newTestSnapshotStore(t)
	_, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSnapshotStore_StartPeriodicSavePersistsOnTicks(t *testing.T) {
	s := newTestSnapshotStore(t)
	coord := New(config.Default(), rhlog.NoOpLogger{})
	require.NoError(t, coord.RegisterAgent("agent-2", nil))

	ctx, cancel := context.WithCancel(context.Background())
	s.StartPeriodicSave(ctx, coord, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()

	loaded, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	_, present := loaded.Agents["agent-2"]
	assert.True(t, present)
}
