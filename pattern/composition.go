package pattern

import (
	"context"
	"sort"

	"github.com/fugue-ai/rhema-sub012/rherr"
	"github.com/fugue-ai/rhema-sub012/safety"
)

// CompositionAction is one of the four mutations a CompositionRule may
// apply to a ComposedPattern under construction.
type CompositionAction string

const (
	ActionAddPattern    CompositionAction = "add_pattern"
	ActionRemovePattern CompositionAction = "remove_pattern"
	ActionAddConstraint CompositionAction = "add_constraint"
	ActionAddDependency CompositionAction = "add_dependency"
)

// CompositionRule fires its Actions when Conditions hold against the
// composition built so far; higher Priority rules fire first.
type CompositionRule struct {
	Name       string
	Priority   int
	Conditions func(built map[string]Pattern) bool
	Actions    []CompositionEffect
}

// CompositionEffect is one concrete mutation a rule's Actions list applies.
type CompositionEffect struct {
	Action       CompositionAction
	PatternName  string
	Pattern      Pattern
	Constraint   string
	DependsOn    string // used by ActionAddDependency: PatternName depends on this
}

// ComposedPattern builds a single Pattern out of named child template
// instantiations plus a dependency graph, applying CompositionRules in
// priority order before execution, and running children in topological
// order of their declared dependencies.
type ComposedPattern struct {
	name        string
	children    map[string]Pattern
	graph       *safety.DependencyGraph
	rules       []CompositionRule
	constraints []string
	strategies  map[string]RecoveryStrategy // per-child recovery strategy
	executor    *Executor
}

// NewComposedPattern builds a composition from an initial set of named
// template instantiations and applies rules once, in priority order.
// Children are unordered; dependencies are resolved by name.
func NewComposedPattern(name string, executor *Executor, children map[string]Pattern, rules []CompositionRule) *ComposedPattern {
	graph := safety.NewDependencyGraph()
	for n := range children {
		graph.AddNode(n, nil)
	}
	sorted := append([]CompositionRule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	cp := &ComposedPattern{
		name:       name,
		children:   children,
		graph:      graph,
		rules:      sorted,
		strategies: make(map[string]RecoveryStrategy),
		executor:   executor,
	}
	cp.applyRules()
	return cp
}

// applyRules runs every rule (already priority-sorted) whose Conditions
// hold against the composition as currently built, applying its Actions in
// order.
func (cp *ComposedPattern) applyRules() {
	for _, rule := range cp.rules {
		if rule.Conditions != nil && !rule.Conditions(cp.children) {
			continue
		}
		for _, eff := range rule.Actions {
			cp.apply(eff)
		}
	}
}

func (cp *ComposedPattern) apply(eff CompositionEffect) {
	switch eff.Action {
	case ActionAddPattern:
		cp.children[eff.PatternName] = eff.Pattern
		cp.graph.AddNode(eff.PatternName, cp.graph.Dependencies(eff.PatternName))
	case ActionRemovePattern:
		delete(cp.children, eff.PatternName)
	case ActionAddConstraint:
		cp.constraints = append(cp.constraints, eff.Constraint)
	case ActionAddDependency:
		deps := append(cp.graph.Dependencies(eff.PatternName), eff.DependsOn)
		cp.graph.AddNode(eff.PatternName, deps)
	}
}

// Metadata identifies the composed pattern as a Pattern in its own right.
func (cp *ComposedPattern) Metadata() Metadata {
	return Metadata{Name: cp.name, Version: "composed", Description: "composition of " + itoa(len(cp.children)) + " child patterns"}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// Validate runs every child's Validate; any child error or Errors list
// fails the whole composition.
func (cp *ComposedPattern) Validate(ctx context.Context, pctx *Context) (ValidationResult, error) {
	var warnings []string
	for name, child := range cp.children {
		v, err := child.Validate(ctx, pctx)
		if err != nil {
			return ValidationResult{}, err
		}
		if len(v.Errors) > 0 {
			return ValidationResult{IsValid: false, Errors: prefixEach(name, v.Errors)}, nil
		}
		warnings = append(warnings, prefixEach(name, v.Warnings)...)
	}
	return ValidationResult{IsValid: true, Warnings: warnings}, nil
}

func prefixEach(prefix string, items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = prefix + ": " + s
	}
	return out
}

// Execute runs every child pattern in topological order of the declared
// dependency graph. A child's failure triggers that child's own recovery
// strategy (via Executor.Run); if still unrecovered, execution stops and
// the composition fails.
func (cp *ComposedPattern) Execute(ctx context.Context, pctx *Context) (Result, error) {
	order := cp.graph.TopologicalOrder()
	if order == nil && len(cp.children) > 0 {
		return Result{}, rherr.New("pattern.Execute", "pattern", rherr.ErrDependencyIntegrity, "composition contains a dependency cycle")
	}

	data := make(map[string]interface{}, len(cp.children))
	for _, name := range order {
		child, ok := cp.children[name]
		if !ok {
			continue
		}
		strategy := cp.strategies[name]
		run := cp.executor.Run(ctx, child, pctx, strategy)
		data[name] = run

		if run.Status != StatusCompleted {
			return Result{Success: false, Data: data, Error: run.Result.Error}, nil
		}
	}
	return Result{Success: true, Data: data}, nil
}

// Rollback rolls every child back, in reverse topological order, best
// effort (the first error is remembered and returned after every child has
// had a chance to roll back).
func (cp *ComposedPattern) Rollback(ctx context.Context, pctx *Context) error {
	order := cp.graph.TopologicalOrder()
	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		child, ok := cp.children[order[i]]
		if !ok {
			continue
		}
		if err := child.Rollback(ctx, pctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetChildStrategy overrides the recovery strategy used for a given child
// when the composition executes it.
func (cp *ComposedPattern) SetChildStrategy(childName string, strategy RecoveryStrategy) {
	cp.strategies[childName] = strategy
}

// ExecutionLevels exposes the dependency graph's parallel-execution waves,
// for callers that want to run disjoint children concurrently instead of
// strictly sequentially.
func (cp *ComposedPattern) ExecutionLevels() [][]string {
	return cp.graph.ExecutionLevels()
}
