// Package safety implements the kernel's invariant checks: context consistency,
// dependency integrity, agent coordination, lock consistency, and
// sync-status consistency. Five independent validators each track their own
// validation count; cycle detection itself lives in DependencyGraph so the
// pattern package's composition ordering can reuse it.
package safety

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/fugue-ai/rhema-sub012/rherr"
)

// AgentState is the lifecycle state of a coordinated agent.
type AgentState string

const (
	AgentIdle      AgentState = "idle"
	AgentWorking   AgentState = "working"
	AgentBlocked   AgentState = "blocked"
	AgentCompleted AgentState = "completed"
)

func (s AgentState) valid() bool {
	switch s {
	case AgentIdle, AgentWorking, AgentBlocked, AgentCompleted:
		return true
	default:
		return false
	}
}

// SyncStatus is the synchronization state of a scope.
type SyncStatus string

const (
	SyncIdle      SyncStatus = "idle"
	SyncSyncing   SyncStatus = "syncing"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

func (s SyncStatus) valid() bool {
	switch s {
	case SyncIdle, SyncSyncing, SyncCompleted, SyncFailed:
		return true
	default:
		return false
	}
}

// ContextValidator checks YAML-shaped content and scope reference integrity.
type ContextValidator struct {
	validationCount int64
}

// NewContextValidator returns a zeroed ContextValidator.
func NewContextValidator() *ContextValidator { return &ContextValidator{} }

// ValidationCount reports how many validations this validator has performed.
func (v *ContextValidator) ValidationCount() int64 { return atomic.LoadInt64(&v.validationCount) }

// ValidateScopeReferences ensures scope is a member of allScopes.
func (v *ContextValidator) ValidateScopeReferences(scope string, allScopes []string) error {
	atomic.AddInt64(&v.validationCount, 1)
	for _, s := range allScopes {
		if s == scope {
			return nil
		}
	}
	return rherr.New("safety.ValidateScopeReferences", "safety", rherr.ErrContextConsistency,
		"scope reference not found: "+scope)
}

// ValidateContentNotEmpty is a minimal structural check: content entries
// (memory, decisions, patterns) must carry a non-blank body. Deeper schema
// validation is intentionally out of scope.
func (v *ContextValidator) ValidateContentNotEmpty(content string) error {
	atomic.AddInt64(&v.validationCount, 1)
	if strings.TrimSpace(content) == "" {
		return rherr.New("safety.ValidateContentNotEmpty", "safety", rherr.ErrContextConsistency,
			"content body is empty")
	}
	return nil
}

// DependencyValidator checks dependency-graph integrity: no cycles, no
// self-dependencies, every referenced dependency exists, and bounds respected.
type DependencyValidator struct {
	validationCount int64
	maxDependencies  int
}

// NewDependencyValidator returns a validator enforcing maxDependencies per node.
func NewDependencyValidator(maxDependencies int) *DependencyValidator {
	return &DependencyValidator{maxDependencies: maxDependencies}
}

func (v *DependencyValidator) ValidationCount() int64 { return atomic.LoadInt64(&v.validationCount) }

// ValidateNoCircularDependencies builds a DependencyGraph from deps and
// checks it for cycles, including self-loops.
func (v *DependencyValidator) ValidateNoCircularDependencies(deps map[string][]string) error {
	atomic.AddInt64(&v.validationCount, 1)
	g := NewDependencyGraph()
	for node, d := range deps {
		g.AddNode(node, d)
	}
	return g.validateCycleFree("safety.ValidateNoCircularDependencies")
}

// ValidateGraphIntegrity ensures every dependency in the graph names a node
// that is itself present in the graph.
func (v *DependencyValidator) ValidateGraphIntegrity(graph map[string][]string) error {
	atomic.AddInt64(&v.validationCount, 1)
	for scope, deps := range graph {
		for _, dep := range deps {
			if _, ok := graph[dep]; !ok {
				return rherr.New("safety.ValidateGraphIntegrity", "safety", rherr.ErrDependencyIntegrity,
					"dependency "+dep+" not found in graph for scope "+scope)
			}
		}
	}
	return nil
}

// ValidateBounds rejects a dependency list longer than the configured max.
func (v *DependencyValidator) ValidateBounds(deps []string) error {
	atomic.AddInt64(&v.validationCount, 1)
	if len(deps) > v.maxDependencies {
		return rherr.New("safety.ValidateBounds", "safety", rherr.ErrResourceBounds,
			"too many dependencies")
	}
	return nil
}

// ValidateNoSelfDependency rejects scope appearing in its own dependency list.
func (v *DependencyValidator) ValidateNoSelfDependency(scope string, deps []string) error {
	atomic.AddInt64(&v.validationCount, 1)
	for _, d := range deps {
		if d == scope {
			return rherr.New("safety.ValidateNoSelfDependency", "safety", rherr.ErrDependencyIntegrity,
				"self-dependency detected for scope "+scope)
		}
	}
	return nil
}

// AgentValidator checks agent state validity and coordination bounds.
type AgentValidator struct {
	validationCount int64
}

func NewAgentValidator() *AgentValidator { return &AgentValidator{} }

func (v *AgentValidator) ValidationCount() int64 { return atomic.LoadInt64(&v.validationCount) }

// ValidateStates ensures every agent is in a recognized lifecycle state.
func (v *AgentValidator) ValidateStates(agents map[string]AgentState) error {
	atomic.AddInt64(&v.validationCount, 1)
	for id, state := range agents {
		if !state.valid() {
			return rherr.New("safety.ValidateStates", "safety", rherr.ErrAgentCoordination,
				"invalid agent state for "+id)
		}
	}
	return nil
}

// ValidateConcurrentBound ensures the number of held locks does not exceed
// the configured concurrent-agent cap.
func (v *AgentValidator) ValidateConcurrentBound(heldLocks int, maxConcurrent int) error {
	atomic.AddInt64(&v.validationCount, 1)
	if heldLocks > maxConcurrent {
		return rherr.New("safety.ValidateConcurrentBound", "safety", rherr.ErrAgentCoordination,
			"too many concurrent agents")
	}
	return nil
}

// ValidateProgress checks an agent hasn't been Blocked past maxBlockTime.
func (v *AgentValidator) ValidateProgress(agentID string, state AgentState, blockedSince time.Time, maxBlockTime time.Duration) error {
	atomic.AddInt64(&v.validationCount, 1)
	if !state.valid() {
		return rherr.New("safety.ValidateProgress", "safety", rherr.ErrAgentCoordination,
			"invalid agent state for "+agentID)
	}
	if state == AgentBlocked && !blockedSince.IsZero() && time.Since(blockedSince) > maxBlockTime {
		return rherr.New("safety.ValidateProgress", "safety", rherr.ErrAgentCoordination,
			"agent "+agentID+" exceeded max block time")
	}
	return nil
}

// LockValidator checks scope-lock consistency: ownership by a live agent,
// one lock per agent, and timeout enforcement.
type LockValidator struct {
	validationCount int64
}

func NewLockValidator() *LockValidator { return &LockValidator{} }

func (v *LockValidator) ValidationCount() int64 { return atomic.LoadInt64(&v.validationCount) }

// ValidateOwnership ensures every lock holder is a known agent.
func (v *LockValidator) ValidateOwnership(locks map[string]string, knownAgents []string) error {
	atomic.AddInt64(&v.validationCount, 1)
	known := make(map[string]bool, len(knownAgents))
	for _, a := range knownAgents {
		known[a] = true
	}
	for scope, agentID := range locks {
		if agentID == "" {
			continue
		}
		if !known[agentID] {
			return rherr.New("safety.ValidateOwnership", "safety", rherr.ErrLockConsistency,
				"lock held by non-existent agent "+agentID+" for scope "+scope)
		}
	}
	return nil
}

// ValidateOnePerAgent ensures no agent holds more than one scope lock
// simultaneously.
func (v *LockValidator) ValidateOnePerAgent(locks map[string]string) error {
	atomic.AddInt64(&v.validationCount, 1)
	counts := make(map[string]int)
	for _, agentID := range locks {
		if agentID == "" {
			continue
		}
		counts[agentID]++
	}
	for agentID, count := range counts {
		if count > 1 {
			return rherr.New("safety.ValidateOnePerAgent", "safety", rherr.ErrLockConsistency,
				"agent "+agentID+" holds multiple locks")
		}
	}
	return nil
}

// ValidateTimeouts ensures no lock has outlived its deadline.
func (v *LockValidator) ValidateTimeouts(locks map[string]string, deadlines map[string]time.Time, now time.Time) error {
	atomic.AddInt64(&v.validationCount, 1)
	for scope, agentID := range locks {
		if agentID == "" {
			continue
		}
		if deadline, ok := deadlines[agentID]; ok && !deadline.IsZero() && !deadline.After(now) {
			return rherr.New("safety.ValidateTimeouts", "safety", rherr.ErrLockConsistency,
				"lock timeout for agent "+agentID+" on scope "+scope)
		}
	}
	return nil
}

// SyncValidator checks sync-status consistency: a Syncing scope's declared
// dependencies must all have completed first.
type SyncValidator struct {
	validationCount int64
}

func NewSyncValidator() *SyncValidator { return &SyncValidator{} }

func (v *SyncValidator) ValidationCount() int64 { return atomic.LoadInt64(&v.validationCount) }

// ValidateConsistency checks every scope's status is recognized, and that a
// Syncing scope's dependencies have all reached SyncCompleted.
func (v *SyncValidator) ValidateConsistency(status map[string]SyncStatus, dependencies map[string][]string) error {
	atomic.AddInt64(&v.validationCount, 1)
	for scope, s := range status {
		if !s.valid() {
			return rherr.New("safety.ValidateConsistency", "safety", rherr.ErrSyncStatusConsistency,
				"invalid sync status for scope "+scope)
		}
		if s != SyncSyncing {
			continue
		}
		for _, dep := range dependencies[scope] {
			depStatus, ok := status[dep]
			if !ok {
				return rherr.New("safety.ValidateConsistency", "safety", rherr.ErrSyncStatusConsistency,
					"scope "+scope+" is syncing but dependency "+dep+" not found")
			}
			if depStatus != SyncCompleted {
				return rherr.New("safety.ValidateConsistency", "safety", rherr.ErrSyncStatusConsistency,
					"scope "+scope+" is syncing but dependency "+dep+" is not completed")
			}
		}
	}
	return nil
}

// Validator composes the five sub-validators. ValidateAll runs them in a
// fixed order: context, dependency, agent/coordination, lock, sync; the
// coordinator also calls individual sub-validators directly.
type Validator struct {
	Context    *ContextValidator
	Dependency *DependencyValidator
	Agent      *AgentValidator
	Lock       *LockValidator
	Sync       *SyncValidator
}

// NewValidator builds a Validator with maxDependencies threaded to the
// dependency sub-validator.
func NewValidator(maxDependencies int) *Validator {
	return &Validator{
		Context:    NewContextValidator(),
		Dependency: NewDependencyValidator(maxDependencies),
		Agent:      NewAgentValidator(),
		Lock:       NewLockValidator(),
		Sync:       NewSyncValidator(),
	}
}

// Snapshot is the read-only view of coordinator state a Validator checks
// against. Coordinator.Snapshot() produces one of these on demand; safety
// never reaches back into the coordinator directly.
type Snapshot struct {
	Agents          map[string]AgentState
	BlockedSince    map[string]time.Time
	Locks           map[string]string // scope -> agent id, "" if unlocked
	LockDeadlines   map[string]time.Time
	SyncStatus      map[string]SyncStatus
	SyncDependencies map[string][]string
	Dependencies    map[string][]string
	MaxConcurrent   int
	MaxBlockTime    time.Duration
}

// Stats reports the per-validator validation counts.
type Stats struct {
	Context    int64
	Dependency int64
	Agent      int64
	Lock       int64
	Sync       int64
}

// Stats returns the current invocation counts of each sub-validator.
func (v *Validator) Stats() Stats {
	return Stats{
		Context:    v.Context.ValidationCount(),
		Dependency: v.Dependency.ValidationCount(),
		Agent:      v.Agent.ValidationCount(),
		Lock:       v.Lock.ValidationCount(),
		Sync:       v.Sync.ValidationCount(),
	}
}

// ValidateAll runs every check against a Snapshot in order: context,
// dependency integrity/cycles, agent coordination, lock consistency, sync
// consistency. It returns the first violation found.
func (v *Validator) ValidateAll(snap Snapshot) error {
	knownScopes := make([]string, 0, len(snap.Dependencies))
	for scope := range snap.Dependencies {
		knownScopes = append(knownScopes, scope)
	}
	for scope := range snap.Dependencies {
		if err := v.Context.ValidateScopeReferences(scope, knownScopes); err != nil {
			return err
		}
	}

	for scope, deps := range snap.Dependencies {
		if err := v.Dependency.ValidateNoSelfDependency(scope, deps); err != nil {
			return err
		}
	}
	if err := v.Dependency.ValidateGraphIntegrity(snap.Dependencies); err != nil {
		return err
	}
	if err := v.Dependency.ValidateNoCircularDependencies(snap.Dependencies); err != nil {
		return err
	}

	if err := v.Agent.ValidateStates(snap.Agents); err != nil {
		return err
	}
	heldLocks := 0
	for _, agentID := range snap.Locks {
		if agentID != "" {
			heldLocks++
		}
	}
	if err := v.Agent.ValidateConcurrentBound(heldLocks, snap.MaxConcurrent); err != nil {
		return err
	}
	for agentID, state := range snap.Agents {
		if err := v.Agent.ValidateProgress(agentID, state, snap.BlockedSince[agentID], snap.MaxBlockTime); err != nil {
			return err
		}
	}

	knownAgents := make([]string, 0, len(snap.Agents))
	for id := range snap.Agents {
		knownAgents = append(knownAgents, id)
	}
	if err := v.Lock.ValidateOwnership(snap.Locks, knownAgents); err != nil {
		return err
	}
	if err := v.Lock.ValidateOnePerAgent(snap.Locks); err != nil {
		return err
	}
	if err := v.Lock.ValidateTimeouts(snap.Locks, snap.LockDeadlines, time.Now()); err != nil {
		return err
	}

	if err := v.Sync.ValidateConsistency(snap.SyncStatus, snap.SyncDependencies); err != nil {
		return err
	}

	return nil
}
