// Package coordinator implements agent registration, FIFO scope-lock
// arbitration, and sync-status bookkeeping. It keeps a state-map-plus-mutex
// structure with an optional component-scoped logger and heartbeat/TTL
// bookkeeping. RegisterAgent, Acquire and BeginSync check the relevant
// safety.Validator rules and refuse a change that would break them; Release,
// CompleteSync and UnregisterAgent apply without validation, and Validate
// runs the full suite on demand.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/fugue-ai/rhema-sub012/config"
	"github.com/fugue-ai/rhema-sub012/rherr"
	"github.com/fugue-ai/rhema-sub012/rhlog"
	"github.com/fugue-ai/rhema-sub012/safety"
)

// lockTicket is one waiter's place in a scope's FIFO acquisition queue.
type lockTicket struct {
	agentID string
	granted chan struct{}
}

// scopeQueue holds the FIFO wait line for one scope's lock.
type scopeQueue struct {
	holder string // agent id, "" if unlocked
	deadline time.Time
	waiters []*lockTicket
}

// Coordinator is the single in-process authority over agent state, scope
// locks, and sync status. RegisterAgent, Acquire and BeginSync consult
// safety.Validator and refuse a change that would violate an invariant;
// Release, CompleteSync and UnregisterAgent do not run the validator.
type Coordinator struct {
	mu sync.Mutex

	cfg       *config.Config
	logger    rhlog.Logger
	validator *safety.Validator

	agents       map[string]safety.AgentState
	blockedSince map[string]time.Time
	dependencies map[string][]string // agent -> scope dependency list, used by ValidateBounds/cycles

	locks map[string]*scopeQueue

	syncStatus       map[string]safety.SyncStatus
	syncDependencies map[string][]string
}

// New builds a Coordinator bound to cfg, logging through logger (NoOpLogger
// if nil).
func New(cfg *config.Config, logger rhlog.Logger) *Coordinator {
	if logger == nil {
		logger = rhlog.NoOpLogger{}
	}
	return &Coordinator{
		cfg:              cfg,
		logger:           rhlog.Component(logger, "coordinator"),
		validator:        safety.NewValidator(cfg.MaxDependencies),
		agents:           make(map[string]safety.AgentState),
		blockedSince:     make(map[string]time.Time),
		dependencies:     make(map[string][]string),
		locks:            make(map[string]*scopeQueue),
		syncStatus:       make(map[string]safety.SyncStatus),
		syncDependencies: make(map[string][]string),
	}
}

// RegisterAgent adds agentID in AgentIdle state with an optional dependency
// list (scopes this agent's work depends on, validated for cycles/bounds).
func (c *Coordinator) RegisterAgent(agentID string, dependencies []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validator.Dependency.ValidateBounds(dependencies); err != nil {
		return err
	}
	if err := c.validator.Dependency.ValidateNoSelfDependency(agentID, dependencies); err != nil {
		return err
	}

	c.agents[agentID] = safety.AgentIdle
	c.dependencies[agentID] = append([]string(nil), dependencies...)

	if err := c.validator.Dependency.ValidateNoCircularDependencies(c.dependencies); err != nil {
		delete(c.agents, agentID)
		delete(c.dependencies, agentID)
		return err
	}

	c.logger.Info("agent registered", map[string]interface{}{"agent_id": agentID})
	return nil
}

// UnregisterAgent removes agentID and releases any lock it still holds.
func (c *Coordinator) UnregisterAgent(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for scope, q := range c.locks {
		if q.holder == agentID {
			c.releaseLocked(scope, agentID)
		}
	}
	delete(c.agents, agentID)
	delete(c.blockedSince, agentID)
	delete(c.dependencies, agentID)
	c.logger.Info("agent unregistered", map[string]interface{}{"agent_id": agentID})
}

// Acquire blocks agentID on scope's FIFO queue until it is granted the lock,
// ctx is cancelled, or cfg.MaxBlockTime elapses - whichever comes first.
// Grants are strictly first-come-first-served among current waiters.
func (c *Coordinator) Acquire(ctx context.Context, agentID, scope string) error {
	c.mu.Lock()
	if _, ok := c.agents[agentID]; !ok {
		c.mu.Unlock()
		return rherr.New("coordinator.Acquire", "coordinator", rherr.ErrAgentCoordination, "unknown agent "+agentID)
	}

	if err := c.validator.Agent.ValidateConcurrentBound(c.heldLockCountLocked()+1, c.cfg.MaxConcurrentAgents); err != nil {
		c.mu.Unlock()
		return err
	}

	q, ok := c.locks[scope]
	if !ok {
		q = &scopeQueue{}
		c.locks[scope] = q
	}

	if q.holder == "" && len(q.waiters) == 0 {
		q.holder = agentID
		q.deadline = time.Now().Add(c.cfg.MaxBlockTime)
		c.agents[agentID] = safety.AgentWorking
		c.mu.Unlock()
		c.logger.Debug("lock granted immediately", map[string]interface{}{"agent_id": agentID, "scope": scope})
		return nil
	}

	ticket := &lockTicket{agentID: agentID, granted: make(chan struct{})}
	q.waiters = append(q.waiters, ticket)
	c.agents[agentID] = safety.AgentBlocked
	c.blockedSince[agentID] = time.Now()
	c.mu.Unlock()

	timer := time.NewTimer(c.cfg.MaxBlockTime)
	defer timer.Stop()

	select {
	case <-ticket.granted:
		c.mu.Lock()
		delete(c.blockedSince, agentID)
		c.agents[agentID] = safety.AgentWorking
		c.mu.Unlock()
		return nil
	case <-ctx.Done():
		c.abandonTicket(scope, ticket)
		return rherr.Wrap("coordinator.Acquire", "coordinator", rherr.ErrCancelled, ctx.Err())
	case <-timer.C:
		c.abandonTicket(scope, ticket)
		return rherr.New("coordinator.Acquire", "coordinator", rherr.ErrLockTimeout, "timed out waiting for scope "+scope)
	}
}

// abandonTicket removes a waiter that gave up (cancelled or timed out) from
// scope's queue without granting it the lock.
func (c *Coordinator) abandonTicket(scope string, ticket *lockTicket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.locks[scope]
	if !ok {
		return
	}
	for i, w := range q.waiters {
		if w == ticket {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			break
		}
	}
	delete(c.blockedSince, ticket.agentID)
	if c.agents[ticket.agentID] == safety.AgentBlocked {
		c.agents[ticket.agentID] = safety.AgentIdle
	}
}

// Release relinquishes agentID's hold on scope and grants it to the next
// FIFO waiter, if any.
func (c *Coordinator) Release(agentID, scope string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseLocked(scope, agentID)
}

func (c *Coordinator) releaseLocked(scope, agentID string) error {
	q, ok := c.locks[scope]
	if !ok || q.holder != agentID {
		return rherr.New("coordinator.Release", "coordinator", rherr.ErrLockConsistency,
			"agent "+agentID+" does not hold scope "+scope)
	}

	if c.agents[agentID] == safety.AgentWorking {
		c.agents[agentID] = safety.AgentIdle
	}

	if len(q.waiters) == 0 {
		q.holder = ""
		return nil
	}

	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	q.holder = next.agentID
	q.deadline = time.Now().Add(c.cfg.MaxBlockTime)
	close(next.granted)
	return nil
}

func (c *Coordinator) heldLockCountLocked() int {
	n := 0
	for _, q := range c.locks {
		if q.holder != "" {
			n++
		}
	}
	return n
}

// BeginSync marks scope as Syncing after validating that every scope it
// depends on (per dependencies) has already completed syncing.
func (c *Coordinator) BeginSync(scope string, dependencies []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.syncDependencies[scope] = append([]string(nil), dependencies...)
	prev := c.syncStatus[scope]
	c.syncStatus[scope] = safety.SyncSyncing

	if err := c.validator.Sync.ValidateConsistency(c.syncStatus, c.syncDependencies); err != nil {
		c.syncStatus[scope] = prev
		return err
	}
	c.logger.Info("sync started", map[string]interface{}{"scope": scope})
	return nil
}

// CompleteSync marks scope's sync as finished, successfully or not.
func (c *Coordinator) CompleteSync(scope string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.syncStatus[scope] = safety.SyncCompleted
	} else {
		c.syncStatus[scope] = safety.SyncFailed
	}
	c.logger.Info("sync finished", map[string]interface{}{"scope": scope, "success": success})
}

// Snapshot produces a read-only view of coordinator state for
// safety.Validator.ValidateAll, without coordinator importing back into
// anything that depends on it.
func (c *Coordinator) Snapshot() safety.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	locks := make(map[string]string, len(c.locks))
	deadlines := make(map[string]time.Time, len(c.locks))
	for scope, q := range c.locks {
		locks[scope] = q.holder
		if q.holder != "" {
			deadlines[q.holder] = q.deadline
		}
	}

	return safety.Snapshot{
		Agents:           copyAgentStates(c.agents),
		BlockedSince:     copyTimes(c.blockedSince),
		Locks:            locks,
		LockDeadlines:    deadlines,
		SyncStatus:       copySyncStatus(c.syncStatus),
		SyncDependencies: copyDeps(c.syncDependencies),
		Dependencies:     copyDeps(c.dependencies),
		MaxConcurrent:    c.cfg.MaxConcurrentAgents,
		MaxBlockTime:     c.cfg.MaxBlockTime,
	}
}

// Validate runs the full safety.Validator suite against the current state.
func (c *Coordinator) Validate() error {
	return c.validator.ValidateAll(c.Snapshot())
}

// Stats exposes the per-sub-validator invocation counts accumulated so far.
func (c *Coordinator) Stats() safety.Stats {
	return c.validator.Stats()
}

func copyAgentStates(m map[string]safety.AgentState) map[string]safety.AgentState {
	out := make(map[string]safety.AgentState, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySyncStatus(m map[string]safety.SyncStatus) map[string]safety.SyncStatus {
	out := make(map[string]safety.SyncStatus, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTimes(m map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyDeps(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}
