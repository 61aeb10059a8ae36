package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-substrate/substrate/condition"
)

func TestRunLoop_RepeatsWhileConditionHolds(t *testing.T) {
	wf := &Workflow{ID: "wf-1", MaxExecutionTime: time.Second}
	state := NewSharedState(nil)
	state.Set("count", 0)

	cfg := LoopConfig{
		MaxIterations: 10,
		Condition:     condition.Custom("shared_data.should_continue == true"),
		Body: []Step{
			{ID: "incr", Run: func(_ context.Context, s *SharedState) (map[string]any, error) {
				n, _ := s.Get("count")
				count := n.(int) + 1
				s.Set("count", count)
				if count >= 3 {
					s.Set("should_continue", false)
				} else {
					s.Set("should_continue", true)
				}
				return nil, nil
			}},
		},
	}
	state.Set("should_continue", true)

	res := RunLoop(context.Background(), wf, cfg, state, "exec-1")
	require.NoError(t, res.Err)
	count, _ := res.SharedData["count"].(int)
	assert.Equal(t, 3, count)
}

func TestRunLoop_StopsAtMaxIterations(t *testing.T) {
	wf := &Workflow{ID: "wf-1", MaxExecutionTime: time.Second}
	state := NewSharedState(nil)
	state.Set("always_true", true)

	runs := 0
	cfg := LoopConfig{
		MaxIterations: 3,
		Condition:     condition.SharedDataEquals("always_true", "true"),
		Body: []Step{
			{ID: "tick", Run: func(context.Context, *SharedState) (map[string]any, error) { runs++; return nil, nil }},
		},
	}

	res := RunLoop(context.Background(), wf, cfg, state, "exec-1")
	require.NoError(t, res.Err)
	assert.Equal(t, 3, runs)
}

func TestRunLoop_BreakSignalEndsLoopEarly(t *testing.T) {
	wf := &Workflow{ID: "wf-1", MaxExecutionTime: time.Second}
	state := NewSharedState(nil)
	state.Set("always_true", true)

	runs := 0
	cfg := LoopConfig{
		MaxIterations: 100,
		Condition:     condition.SharedDataEquals("always_true", "true"),
		Body: []Step{
			{ID: "tick", Run: func(_ context.Context, s *SharedState) (map[string]any, error) {
				runs++
				if runs == 2 {
					s.Set(BreakKey, true)
				}
				return nil, nil
			}},
		},
	}

	res := RunLoop(context.Background(), wf, cfg, state, "exec-1")
	require.NoError(t, res.Err)
	assert.Equal(t, 2, runs)
}

func TestRunLoop_PublishesIterationCounter(t *testing.T) {
	wf := &Workflow{ID: "wf-1", MaxExecutionTime: time.Second}
	state := NewSharedState(nil)
	state.Set("always_true", true)

	var seen []int
	cfg := LoopConfig{
		MaxIterations: 3,
		Condition:     condition.SharedDataEquals("always_true", "true"),
		Body: []Step{
			{ID: "record", Run: func(_ context.Context, s *SharedState) (map[string]any, error) {
				n, _ := s.Get("iteration")
				seen = append(seen, n.(int))
				return nil, nil
			}},
		},
	}

	res := RunLoop(context.Background(), wf, cfg, state, "exec-1")
	require.NoError(t, res.Err)
	assert.Equal(t, []int{0, 1, 2}, seen)
}
