package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-sub012/config"
	"github.com/fugue-ai/rhema-sub012/safety"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	cfg := config.New(
		config.WithMaxConcurrentAgents(2),
		config.WithMaxBlockTime(200*time.Millisecond),
	)
	return New(cfg, nil)
}

func TestRegisterAgent_RejectsSelfDependency(t *testing.T) {
	c := newTestCoordinator(t)
	err := c.RegisterAgent("agent1", []string{"agent1"})
	require.Error(t, err)
}

func TestRegisterAgent_RejectsCircularDependency(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.RegisterAgent("agentA", []string{"agentB"}))
	err := c.RegisterAgent("agentB", []string{"agentA"})
	require.Error(t, err)
}

func TestAcquireRelease_FIFOOrdering(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.RegisterAgent("agent1", nil))
	require.NoError(t, c.RegisterAgent("agent2", nil))
	require.NoError(t, c.RegisterAgent("agent3", nil))

	ctx := context.Background()
	require.NoError(t, c.Acquire(ctx, "agent1", "scope1"))

	var order []string
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range []string{"agent2", "agent3"} {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			if err := c.Acquire(context.Background(), agentID, "scope1"); err == nil {
				mu.Lock()
				order = append(order, agentID)
				mu.Unlock()
			}
		}(id)
		time.Sleep(20 * time.Millisecond) // ensure queue ordering is deterministic
	}

	require.NoError(t, c.Release("agent1", "scope1"))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Release("agent2", "scope1"))

	wg.Wait()
	assert.Equal(t, []string{"agent2", "agent3"}, order)
}

func TestAcquire_TimesOut(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.RegisterAgent("agent1", nil))
	require.NoError(t, c.RegisterAgent("agent2", nil))

	require.NoError(t, c.Acquire(context.Background(), "agent1", "scope1"))
	err := c.Acquire(context.Background(), "agent2", "scope1")
	require.Error(t, err)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.RegisterAgent("agent1", nil))
	require.NoError(t, c.RegisterAgent("agent2", nil))

	require.NoError(t, c.Acquire(context.Background(), "agent1", "scope1"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := c.Acquire(ctx, "agent2", "scope1")
	require.Error(t, err)
}

func TestBeginSync_RequiresDependenciesCompleted(t *testing.T) {
	c := newTestCoordinator(t)
	require.Error(t, c.BeginSync("scope2", []string{"scope1"}))

	c.mu.Lock()
	c.syncStatus["scope1"] = safety.SyncCompleted
	c.mu.Unlock()
	require.NoError(t, c.BeginSync("scope2", []string{"scope1"}))
}

func TestSnapshot_ReflectsLocksAndAgents(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.RegisterAgent("agent1", nil))
	require.NoError(t, c.Acquire(context.Background(), "agent1", "scope1"))

	snap := c.Snapshot()
	assert.Equal(t, "agent1", snap.Locks["scope1"])
	require.NoError(t, c.Validate())
}
