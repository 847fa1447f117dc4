// Package proactive implements the proactive context manager: turning the
// live access-pattern stream into prefetch/suggestion decisions and
// periodically warming the cache on each active agent session's behalf.
// It runs as a small orchestrator over the existing search and cache
// capabilities, with a ticker-plus-stop-channel background loop.
package proactive

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fugue-ai/rhema-sub012/cache"
	"github.com/fugue-ai/rhema-sub012/config"
	"github.com/fugue-ai/rhema-sub012/rhlog"
	"github.com/fugue-ai/rhema-sub012/search"
)

// SuggestionAction names what the manager recommends doing with a
// candidate cache entry.
type SuggestionAction string

const (
	ActionWarm    SuggestionAction = "warm"
	ActionSurface SuggestionAction = "surface"
	ActionArchive SuggestionAction = "archive"
)

// ContextRequirement is one of a workflow step's declared content needs.
type ContextRequirement struct {
	ContentType string
	Scope       string
}

// WorkflowContext describes where an agent is in its current workflow.
type WorkflowContext struct {
	WorkflowID          string
	Type                string
	CurrentStep         string
	StepsCompleted      []string
	StepsRemaining      []string
	ContextRequirements []ContextRequirement
}

// Preferences tunes how aggressively a session's suggestions are filtered.
type Preferences struct {
	SemanticRelevanceThreshold float64
}

// AgentSessionContext is the live session state the manager reasons over.
type AgentSessionContext struct {
	AgentID     string
	SessionID   string
	Workflow    WorkflowContext
	Preferences Preferences
}

func sessionKey(agentID, sessionID string) string { return agentID + "/" + sessionID }

// ContextSuggestion is one prefetch/surface/archive recommendation.
type ContextSuggestion struct {
	CacheKey       string
	Query          string
	Action         SuggestionAction
	EstimatedImpact float64
}

// Manager generates suggestions from a session's workflow context and
// periodically warms the cache with the highest-impact Warm suggestions
// across all registered sessions.
type Manager struct {
	mu       sync.RWMutex
	engine   *search.Engine
	cache    *cache.Cache
	cfg      config.ProactiveConfig
	logger   rhlog.Logger
	sessions map[string]*AgentSessionContext
	dedup    *dedupFilter

	stop chan struct{}
	once sync.Once
}

// New builds a Manager. cfg.BloomDecayEveryTicks governs how quickly the
// warming-dedup filter forgets prior submissions.
func New(engine *search.Engine, c *cache.Cache, cfg config.ProactiveConfig, logger rhlog.Logger) *Manager {
	return &Manager{
		engine:   engine,
		cache:    c,
		cfg:      cfg,
		logger:   rhlog.Component(logger, "proactive"),
		sessions: make(map[string]*AgentSessionContext),
		dedup:    newDedupFilter(4096, 3, cfg.BloomDecayEveryTicks),
		stop:     make(chan struct{}),
	}
}

// RegisterSession tracks session as active; GenerateSuggestions and the
// warming loop both use it until UnregisterSession is called.
func (m *Manager) RegisterSession(s *AgentSessionContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionKey(s.AgentID, s.SessionID)] = s
}

// UnregisterSession stops tracking a session.
func (m *Manager) UnregisterSession(agentID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey(agentID, sessionID))
}

// GenerateSuggestions composes one semantic query per context requirement,
// runs it through the search engine, and emits a ContextSuggestion for
// every result clearing the session's relevance threshold.
func (m *Manager) GenerateSuggestions(ctx context.Context, s *AgentSessionContext) ([]ContextSuggestion, error) {
	var out []ContextSuggestion
	for _, req := range s.Workflow.ContextRequirements {
		query := fmt.Sprintf("%s %s %s %s", s.Workflow.Type, s.Workflow.CurrentStep, req.ContentType, req.Scope)

		var results []search.Result
		var err error
		if req.Scope != "" {
			results, err = m.engine.SearchByScope(ctx, query, req.Scope, 10)
		} else {
			results, err = m.engine.Search(ctx, query, 10)
		}
		if err != nil {
			return nil, err
		}

		for _, r := range results {
			if r.RelevanceScore < s.Preferences.SemanticRelevanceThreshold {
				continue
			}
			out = append(out, ContextSuggestion{
				CacheKey:        r.CacheKey,
				Query:           query,
				Action:          classifyAction(r.RelevanceScore, s.Preferences.SemanticRelevanceThreshold, r.CacheInfo),
				EstimatedImpact: r.RelevanceScore,
			})
		}
	}
	return out, nil
}

// classifyAction decides how a suggestion's action is chosen: entries
// clearly above threshold are worth prefetching (Warm); entries just above
// threshold are merely worth surfacing to the agent without spending
// warming budget on them; entries already cached that have been accessed
// at most once are suggested for archival instead, whatever their score.
func classifyAction(score, threshold float64, info search.CacheInfo) SuggestionAction {
	if info.Cached && info.AccessCount <= 1 {
		return ActionArchive
	}
	if score >= threshold+0.1 {
		return ActionWarm
	}
	return ActionSurface
}

// StartWarmingLoop runs the periodic warming loop until ctx is cancelled or
// Close is called: every cfg.WarmingInterval, it generates suggestions for
// every active session, takes the top cfg.TopNPerSession Warm suggestions,
// and submits each to the cache's warming path unless already deduplicated
// by the rolling Bloom filter.
func (m *Manager) StartWarmingLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.WarmingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.runWarmingPass(ctx)
				m.dedup.tick()
			}
		}
	}()
}

func (m *Manager) runWarmingPass(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*AgentSessionContext, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		suggestions, err := m.GenerateSuggestions(ctx, s)
		if err != nil {
			m.logger.Warn("proactive suggestion generation failed", map[string]interface{}{
				"agent_id": s.AgentID, "err": err.Error(),
			})
			continue
		}

		warm := filterAction(suggestions, ActionWarm)
		sort.Slice(warm, func(i, j int) bool { return warm[i].EstimatedImpact > warm[j].EstimatedImpact })
		if len(warm) > m.cfg.TopNPerSession {
			warm = warm[:m.cfg.TopNPerSession]
		}

		for _, sug := range warm {
			if m.dedup.seen(sug.CacheKey) {
				continue
			}
			m.dedup.mark(sug.CacheKey)
			if err := m.cache.Prefetch(ctx, sug.CacheKey); err != nil {
				m.logger.Warn("proactive prefetch failed", map[string]interface{}{
					"cache_key": sug.CacheKey, "err": err.Error(),
				})
			}
		}
	}
}

func filterAction(suggestions []ContextSuggestion, action SuggestionAction) []ContextSuggestion {
	var out []ContextSuggestion
	for _, s := range suggestions {
		if s.Action == action {
			out = append(out, s)
		}
	}
	return out
}

// Close stops the warming loop.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.stop) })
}
