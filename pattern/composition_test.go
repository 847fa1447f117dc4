package pattern

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-sub012/config"
	"github.com/fugue-ai/rhema-sub012/rhlog"
)

func TestComposedPattern_ExecutesChildrenInTopologicalOrder(t *testing.T) {
	e := NewExecutor(config.PatternConfig{DefaultMaxAttempts: 1}, 16, rhlog.NoOpLogger{})

	var order []string
	mk := func(name string) *fakePattern {
		return &fakePattern{name: name, execute: func(ctx context.Context, pctx *Context) (Result, error) {
			order = append(order, name)
			return Result{Success: true}, nil
		}}
	}

	children := map[string]Pattern{"a": mk("a"), "b": mk("b"), "c": mk("c")}
	rules := []CompositionRule{
		{
			Name:     "b-after-a",
			Priority: 1,
			Conditions: func(built map[string]Pattern) bool { return true },
			Actions: []CompositionEffect{
				{Action: ActionAddDependency, PatternName: "b", DependsOn: "a"},
				{Action: ActionAddDependency, PatternName: "c", DependsOn: "b"},
			},
		},
	}

	cp := NewComposedPattern("pipeline", e, children, rules)
	result, err := cp.Execute(context.Background(), &Context{})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestComposedPattern_StopsOnChildFailure(t *testing.T) {
	e := NewExecutor(config.PatternConfig{DefaultMaxAttempts: 1}, 16, rhlog.NoOpLogger{})

	ok := &fakePattern{name: "ok"}
	fails := &fakePattern{name: "fails", execute: func(ctx context.Context, pctx *Context) (Result, error) {
		return Result{Success: false}, errors.New("boom")
	}}

	children := map[string]Pattern{"ok": ok, "fails": fails}
	cp := NewComposedPattern("pipeline", e, children, nil)
	cp.SetChildStrategy("fails", RecoveryStrategy{Kind: RecoveryAbort})

	result, err := cp.Execute(context.Background(), &Context{})
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestComposedPattern_ValidateAggregatesChildErrors(t *testing.T) {
	e := NewExecutor(config.PatternConfig{}, 16, rhlog.NoOpLogger{})

	bad := &fakePattern{name: "bad", validate: func(ctx context.Context, pctx *Context) (ValidationResult, error) {
		return ValidationResult{IsValid: false, Errors: []string{"missing x"}}, nil
	}}
	children := map[string]Pattern{"bad": bad}

	cp := NewComposedPattern("pipeline", e, children, nil)
	v, err := cp.Validate(context.Background(), &Context{})

	require.NoError(t, err)
	assert.False(t, v.IsValid)
	require.Len(t, v.Errors, 1)
	assert.Contains(t, v.Errors[0], "missing x")
}

func TestComposedPattern_RollbackRunsChildrenInReverseOrder(t *testing.T) {
	e := NewExecutor(config.PatternConfig{}, 16, rhlog.NoOpLogger{})

	var order []string
	mk := func(name string) *fakePattern {
		return &fakePattern{name: name, rollback: func(ctx context.Context, pctx *Context) error {
			order = append(order, name)
			return nil
		}}
	}
	children := map[string]Pattern{"a": mk("a"), "b": mk("b")}
	rules := []CompositionRule{{
		Priority:   1,
		Conditions: func(map[string]Pattern) bool { return true },
		Actions:    []CompositionEffect{{Action: ActionAddDependency, PatternName: "b", DependsOn: "a"}},
	}}

	cp := NewComposedPattern("pipeline", e, children, rules)
	err := cp.Rollback(context.Background(), &Context{})

	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, order)
}

func TestComposedPattern_ExecutionLevelsGroupsIndependentChildren(t *testing.T) {
	e := NewExecutor(config.PatternConfig{}, 16, rhlog.NoOpLogger{})
	children := map[string]Pattern{
		"a": &fakePattern{name: "a"},
		"b": &fakePattern{name: "b"},
	}
	cp := NewComposedPattern("pipeline", e, children, nil)
	levels := cp.ExecutionLevels()
	require.Len(t, levels, 1)
	assert.Len(t, levels[0], 2)
}
