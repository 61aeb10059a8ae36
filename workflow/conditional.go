package workflow

import (
	"context"
	"fmt"

	"github.com/tarsy-substrate/substrate/condition"
	"github.com/tarsy-substrate/substrate/errs"
)

// EvalMode selects how a Conditional executor treats multiple matching
// branches (spec §4.6.3).
type EvalMode string

const (
	EvalFirstMatch EvalMode = "first_match"
	EvalAllMatch   EvalMode = "all_match"
)

// Branch is one condition-guarded list of steps.
type Branch struct {
	Name      string
	Condition condition.Condition
	Steps     []Step
}

// ConditionalConfig configures the Conditional executor.
type ConditionalConfig struct {
	Branches []Branch
	Default  *Branch
	Mode     EvalMode
	// ShortCircuit stops evaluating further branch conditions as soon as
	// one matches, in FirstMatch mode (spec §4.6.3).
	ShortCircuit            bool
	ExecuteDefaultOnNoMatch bool
	// MaxBranchesToEvaluate bounds how many conditions are evaluated,
	// independent of how many branches are actually executed. Zero means
	// "evaluate all branches".
	MaxBranchesToEvaluate int
}

// RunConditional evaluates branches and runs the steps of the matching
// one(s), per spec §4.6.3.
func RunConditional(ctx context.Context, wf *Workflow, cfg ConditionalConfig, state *SharedState, executionID string) Result {
	deadline := computeDeadline(wf)

	maxEval := cfg.MaxBranchesToEvaluate
	if maxEval <= 0 || maxEval > len(cfg.Branches) {
		maxEval = len(cfg.Branches)
	}

	var firstMatch *Branch
	var allMatched []*Branch

	for i := 0; i < maxEval; i++ {
		if firstMatch != nil && cfg.Mode == EvalFirstMatch && cfg.ShortCircuit {
			break
		}
		br := &cfg.Branches[i]
		r := condition.Evaluate(br.Condition, state.EvalContext(executionID), condition.DefaultBudget)
		if r.Err != nil || !r.Value {
			continue
		}
		switch cfg.Mode {
		case EvalAllMatch:
			allMatched = append(allMatched, br)
		default:
			if firstMatch == nil {
				firstMatch = br
			}
			if cfg.ShortCircuit {
				break
			}
		}
	}

	var toRun []*Branch
	switch cfg.Mode {
	case EvalAllMatch:
		toRun = allMatched
	default:
		if firstMatch != nil {
			toRun = []*Branch{firstMatch}
		}
	}

	if len(toRun) == 0 && cfg.ExecuteDefaultOnNoMatch && cfg.Default != nil {
		toRun = []*Branch{cfg.Default}
	}

	var history []StepResult
	for _, br := range toRun {
		if !deadline.IsZero() {
			select {
			case <-ctx.Done():
				return Result{History: history, SharedData: state.Snapshot(), Err: errs.New(errs.KindTimeout, "workflow.RunConditional", fmt.Errorf("%w", ctx.Err()))}
			default:
			}
		}
		branchHistory, err := runStepsSequentially(ctx, wf, br.Steps, state, deadline)
		history = append(history, branchHistory...)
		if err != nil {
			return Result{History: history, SharedData: state.Snapshot(), Err: errs.New(errs.KindBranchFailed, "workflow.RunConditional", err)}
		}
	}

	return Result{History: history, SharedData: state.Snapshot()}
}
