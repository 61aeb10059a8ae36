package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSharedState_GetSetRoundTrips(t *testing.T) {
	s := NewSharedState(nil)
	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Set("k", "v")
	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestSharedState_IncrementCounter(t *testing.T) {
	s := NewSharedState(nil)
	assert.Equal(t, 1, s.IncrementCounter("completed_steps"))
	assert.Equal(t, 2, s.IncrementCounter("completed_steps"))
}

func TestSharedState_StepOutputRoundTrips(t *testing.T) {
	s := NewSharedState(nil)
	_, ok := s.StepOutput("step-1")
	assert.False(t, ok)

	s.SetStepOutput("step-1", map[string]any{"text": "hi"})
	out, ok := s.StepOutput("step-1")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"text": "hi"}, out)
}

func TestSharedState_EvalContextReflectsStepResults(t *testing.T) {
	s := NewSharedState(nil)
	s.Set("data_type", "csv")
	s.RecordStepResult("fetch", true)

	ctx := s.EvalContext("exec-1")
	assert.Equal(t, "csv", ctx.SharedData["data_type"])
	assert.True(t, ctx.StepResults["fetch"].Success)
	assert.Equal(t, "exec-1", ctx.ExecutionID)
}

func TestSharedState_BranchViewIsolatesWritesUntilMerged(t *testing.T) {
	parent := NewSharedState(nil)
	parent.Set("shared", "parent-value")

	branch := parent.branchView()
	branch.Set("shared", "branch-value")
	branch.Set("new_key", 42)

	// Parent is unaffected until the caller merges dirtyWrites back.
	v, _ := parent.Get("shared")
	assert.Equal(t, "parent-value", v)

	writes := branch.dirtyWrites()
	assert.Equal(t, "branch-value", writes["shared"])
	assert.Equal(t, 42, writes["new_key"])
}

func TestSharedState_InputIsReadOnlyToCaller(t *testing.T) {
	s := NewSharedState(map[string]any{"text": "hello"})
	input := s.Input()
	input["text"] = "mutated"

	again := s.Input()
	assert.Equal(t, "hello", again["text"])
}
