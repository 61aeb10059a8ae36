package workflow

import (
	"context"
	"time"

	"github.com/tarsy-substrate/substrate/condition"
)

// BreakKey is the shared-data key a loop body sets to end the loop early
// (spec §4.6.4: "body emits a Break signal via shared data").
const BreakKey = "loop_break"

// LoopConfig configures the Loop executor.
type LoopConfig struct {
	Body          []Step
	Condition     condition.Condition
	MaxIterations int
	PauseDelay    time.Duration
	// IterationKey is the shared-data key the current iteration counter
	// is published under; defaults to "iteration".
	IterationKey string
}

// RunLoop repeats Body while Condition holds, up to MaxIterations (spec
// §4.6.4).
func RunLoop(ctx context.Context, wf *Workflow, cfg LoopConfig, state *SharedState, executionID string) Result {
	deadline := computeDeadline(wf)
	iterationKey := cfg.IterationKey
	if iterationKey == "" {
		iterationKey = "iteration"
	}

	var history []StepResult
	for iteration := 0; ; iteration++ {
		if cfg.MaxIterations > 0 && iteration >= cfg.MaxIterations {
			break
		}
		r := condition.Evaluate(cfg.Condition, state.EvalContext(executionID), condition.DefaultBudget)
		if r.Err != nil || !r.Value {
			break
		}

		state.Set(iterationKey, iteration)
		iterHistory, err := runStepsSequentially(ctx, wf, cfg.Body, state, deadline)
		history = append(history, iterHistory...)

		if brk, _ := state.Get(BreakKey); brk == true {
			break
		}
		if err != nil {
			return Result{History: history, SharedData: state.Snapshot(), Err: err}
		}

		if cfg.PauseDelay > 0 {
			timer := time.NewTimer(cfg.PauseDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return Result{History: history, SharedData: state.Snapshot(), Err: ctx.Err()}
			}
		}
	}

	return Result{History: history, SharedData: state.Snapshot()}
}
