package workflow

import (
	"context"
)

// RunSequential executes steps in declaration order (spec §4.6.2).
func RunSequential(ctx context.Context, wf *Workflow, steps []Step, state *SharedState) Result {
	deadline := computeDeadline(wf)

	history, err := runStepsSequentially(ctx, wf, steps, state, deadline)
	return Result{History: history, SharedData: state.Snapshot(), Err: err}
}
