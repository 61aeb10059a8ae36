package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-substrate/substrate/condition"
)

func markerStep(id string, ran *bool) Step {
	return Step{ID: id, Run: func(context.Context, *SharedState) (map[string]any, error) {
		*ran = true
		return nil, nil
	}}
}

func TestRunConditional_FirstMatchRunsOnlyMatchingBranch(t *testing.T) {
	wf := &Workflow{ID: "wf-1", MaxExecutionTime: time.Second}
	state := NewSharedState(nil)
	state.Set("data_type", "csv")

	var csvRan, otherRan bool
	cfg := ConditionalConfig{
		Mode: EvalFirstMatch,
		Branches: []Branch{
			{Condition: condition.SharedDataEquals("data_type", "csv"), Steps: []Step{markerStep("csv_step", &csvRan)}},
		},
		Default:                 &Branch{Steps: []Step{markerStep("other_step", &otherRan)}},
		ExecuteDefaultOnNoMatch: true,
	}

	res := RunConditional(context.Background(), wf, cfg, state, "exec-1")
	require.NoError(t, res.Err)
	assert.True(t, csvRan)
	assert.False(t, otherRan)
}

func TestRunConditional_ExecutesDefaultOnNoMatch(t *testing.T) {
	wf := &Workflow{ID: "wf-1", MaxExecutionTime: time.Second}
	state := NewSharedState(nil)
	state.Set("data_type", "json")

	var csvRan, defaultRan bool
	cfg := ConditionalConfig{
		Mode: EvalFirstMatch,
		Branches: []Branch{
			{Condition: condition.SharedDataEquals("data_type", "csv"), Steps: []Step{markerStep("csv_step", &csvRan)}},
		},
		Default:                 &Branch{Steps: []Step{markerStep("default_step", &defaultRan)}},
		ExecuteDefaultOnNoMatch: true,
	}

	res := RunConditional(context.Background(), wf, cfg, state, "exec-1")
	require.NoError(t, res.Err)
	assert.False(t, csvRan)
	assert.True(t, defaultRan)
}

func TestRunConditional_AllMatchRunsEveryMatchingBranch(t *testing.T) {
	wf := &Workflow{ID: "wf-1", MaxExecutionTime: time.Second}
	state := NewSharedState(nil)
	state.Set("flag_a", "1")
	state.Set("flag_b", "1")

	var aRan, bRan bool
	cfg := ConditionalConfig{
		Mode: EvalAllMatch,
		Branches: []Branch{
			{Condition: condition.SharedDataEquals("flag_a", "1"), Steps: []Step{markerStep("a", &aRan)}},
			{Condition: condition.SharedDataEquals("flag_b", "1"), Steps: []Step{markerStep("b", &bRan)}},
		},
	}

	res := RunConditional(context.Background(), wf, cfg, state, "exec-1")
	require.NoError(t, res.Err)
	assert.True(t, aRan)
	assert.True(t, bRan)
}

func TestRunConditional_MaxBranchesToEvaluateBoundsWork(t *testing.T) {
	wf := &Workflow{ID: "wf-1", MaxExecutionTime: time.Second}
	state := NewSharedState(nil)
	state.Set("data_type", "csv")

	var ran bool
	cfg := ConditionalConfig{
		Mode:                  EvalFirstMatch,
		MaxBranchesToEvaluate: 1,
		Branches: []Branch{
			{Condition: condition.SharedDataEquals("nonexistent", "x"), Steps: []Step{markerStep("skip", &ran)}},
			{Condition: condition.SharedDataEquals("data_type", "csv"), Steps: []Step{markerStep("never_evaluated", &ran)}},
		},
	}

	res := RunConditional(context.Background(), wf, cfg, state, "exec-1")
	require.NoError(t, res.Err)
	assert.False(t, ran, "second branch must not run: evaluation was capped before reaching it")
}
