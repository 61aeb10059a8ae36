package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunParallel_RunsAllBranchesConcurrently(t *testing.T) {
	wf := &Workflow{ID: "wf-1", MaxExecutionTime: time.Second}
	state := NewSharedState(nil)

	steps := make([]Step, 5)
	for i := 0; i < 5; i++ {
		i := i
		steps[i] = Step{ID: fmt.Sprintf("s%d", i), Run: func(context.Context, *SharedState) (map[string]any, error) {
			return map[string]any{"i": i}, nil
		}}
	}

	res := RunParallel(context.Background(), wf, ParallelConfig{Steps: steps, MaxConcurrency: 2}, state)
	require.NoError(t, res.Err)
	require.Len(t, res.History, 5)
	for i := 0; i < 5; i++ {
		out, ok := state.StepOutput(fmt.Sprintf("s%d", i))
		require.True(t, ok)
		assert.Equal(t, i, out.(map[string]any)["i"])
	}
}

func TestRunParallel_FailFastReturnsFailingBranchError(t *testing.T) {
	wf := &Workflow{ID: "wf-1", MaxExecutionTime: time.Second}
	state := NewSharedState(nil)

	start := make(chan struct{})
	block := make(chan struct{})

	steps := []Step{
		{ID: "fail-fast", Run: func(context.Context, *SharedState) (map[string]any, error) {
			close(start)
			return nil, fmt.Errorf("boom")
		}},
		{ID: "slow", Run: func(context.Context, *SharedState) (map[string]any, error) {
			<-start
			<-block
			return nil, nil
		}},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()

	res := RunParallel(context.Background(), wf, ParallelConfig{Steps: steps, MaxConcurrency: 2, FailFast: true}, state)
	assert.Error(t, res.Err)
}

func TestRunParallel_LastWriterWinsByCompletionOrder(t *testing.T) {
	wf := &Workflow{ID: "wf-1", MaxExecutionTime: time.Second}
	state := NewSharedState(nil)
	state.Set("key", "initial")

	steps := []Step{
		{ID: "slow-writer", Run: func(context.Context, *SharedState) (map[string]any, error) {
			time.Sleep(30 * time.Millisecond)
			return nil, nil
		}},
		{ID: "fast-writer", Run: func(context.Context, *SharedState) (map[string]any, error) {
			return nil, nil
		}},
	}
	// Both branches write "key" via their own local view; simulate the
	// write inside Run using the branch's own SharedState argument.
	steps[0].Run = func(_ context.Context, s *SharedState) (map[string]any, error) {
		time.Sleep(30 * time.Millisecond)
		s.Set("key", "slow")
		return nil, nil
	}
	steps[1].Run = func(_ context.Context, s *SharedState) (map[string]any, error) {
		s.Set("key", "fast")
		return nil, nil
	}

	res := RunParallel(context.Background(), wf, ParallelConfig{Steps: steps, MaxConcurrency: 2}, state)
	require.NoError(t, res.Err)
	// "fast-writer" completes first, "slow-writer" completes last and wins.
	assert.Equal(t, "slow", res.SharedData["key"])
}
