package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarsy-substrate/substrate/errs"
)

// ParallelConfig configures the Parallel executor.
type ParallelConfig struct {
	Steps          []Step
	MaxConcurrency int
	// FailFast cancels pending branches cooperatively once one branch
	// fails (spec §4.6.5). When false, all branches run to completion
	// regardless of individual failures.
	FailFast bool
}

// RunParallel fans out over Steps bounded by MaxConcurrency (spec
// §4.6.5). Each branch reads from an isolated snapshot of shared state;
// writes are merged back atomically in completion order (last writer
// wins for a given key).
func RunParallel(ctx context.Context, wf *Workflow, cfg ParallelConfig, state *SharedState) Result {
	deadline := computeDeadline(wf)
	if time.Now().After(deadline) {
		return Result{SharedData: state.Snapshot(), Err: errs.New(errs.KindTimeout, "workflow.RunParallel", fmt.Errorf("max_execution_time exceeded"))}
	}
	n := len(cfg.Steps)
	if n == 0 {
		return Result{SharedData: state.Snapshot()}
	}

	maxConc := cfg.MaxConcurrency
	if maxConc <= 0 || maxConc > n {
		maxConc = n
	}
	sem := make(chan struct{}, maxConc)

	results := make([]StepResult, n)
	branchWrites := make([]map[string]any, n)
	var cancelled int32

	var completionMu sync.Mutex
	var completionOrder []int

	var wg sync.WaitGroup
	for i, step := range cfg.Steps {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, step Step) {
			defer wg.Done()
			defer func() { <-sem }()

			if atomic.LoadInt32(&cancelled) == 1 {
				results[i] = StepResult{StepID: step.ID, Skipped: true}
				return
			}

			branch := state.branchView()
			res := executeStepWithRetry(ctx, wf, step, branch, deadline)
			results[i] = res
			branchWrites[i] = branch.dirtyWrites()

			completionMu.Lock()
			completionOrder = append(completionOrder, i)
			completionMu.Unlock()

			if res.Err != nil && cfg.FailFast {
				atomic.StoreInt32(&cancelled, 1)
			}
		}(i, step)
	}
	wg.Wait()

	completionMu.Lock()
	order := completionOrder
	completionMu.Unlock()

	for _, i := range order {
		for k, v := range branchWrites[i] {
			state.Set(k, v)
		}
		if results[i].Output != nil {
			state.SetStepOutput(cfg.Steps[i].ID, results[i].Output)
		}
		state.RecordStepResult(cfg.Steps[i].ID, results[i].Err == nil)
	}
	now := time.Now()
	state.touchHeartbeat(now)
	if wf.OnHeartbeat != nil {
		wf.OnHeartbeat(now)
	}

	var terminalErr error
	if cfg.FailFast {
		for _, i := range order {
			if results[i].Err != nil {
				terminalErr = results[i].Err
				break
			}
		}
	}

	return Result{History: results, SharedData: state.Snapshot(), Err: terminalErr}
}
