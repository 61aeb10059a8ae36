// Package workflow implements the Workflow Executor and Tool Composition
// of spec §4.6: Sequential/Conditional/Loop/Parallel execution patterns
// over a shared, per-workflow-serialized state map, each step wrapped in
// the Hook Pipeline and the workflow's retry/error strategy. Grounded in
// the teacher's pkg/queue worker-pool step-processing loop, generalized
// from "process one queue item" to "run one declared step of a pattern".
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tarsy-substrate/substrate/errs"
	"github.com/tarsy-substrate/substrate/hook"
)

// PointStepExecute is the hook point every step execution runs through
// (spec §4.6.1: "wraps a step call in the Hook Pipeline").
const PointStepExecute hook.Point = "workflow.step.execute"

// StepFunc is a step's body.
type StepFunc func(ctx context.Context, state *SharedState) (map[string]any, error)

// Step is one unit of work inside a workflow pattern.
type Step struct {
	ID            string
	Run           StepFunc
	ErrorStrategy StepErrorStrategy
	RetryPolicy   *RetryPolicy
}

// StepResult is one step's recorded outcome, appended to the execution
// history (spec §4.6.1).
type StepResult struct {
	StepID        string
	Output        map[string]any
	Err           error
	RetryAttempts int
	Skipped       bool
	StartedAt     time.Time
	CompletedAt   time.Time
}

// ErrConditionNotMet is returned by a Tool Composition step whose
// execution condition gate evaluates false; executeStepWithRetry treats
// it as Skipped rather than Err.
var ErrConditionNotMet = errors.New("execution condition not met")

// Workflow holds the common contract shared by every pattern (spec
// §4.6.1): the execution deadline, the default error strategy, and the
// hook pipeline every step runs through.
type Workflow struct {
	ID               string
	MaxExecutionTime time.Duration
	ErrorStrategy    WorkflowErrorStrategy
	Hooks            *hook.Pipeline
	// OnHeartbeat is invoked at each step boundary with the heartbeat
	// timestamp (SPEC_FULL's supplemented heartbeat feature).
	OnHeartbeat func(time.Time)
}

// computeDeadline turns a workflow's MaxExecutionTime into an absolute
// deadline. A non-positive MaxExecutionTime is not "no deadline" — spec
// §8 requires every pattern to fail with Timeout before its first step
// when max_execution_time is 0 — so it maps to a deadline already in the
// past, which the deadline checks in RunParallel, executeStepWithRetry and
// runStepsSequentially then reject immediately.
func computeDeadline(wf *Workflow) time.Time {
	if wf.MaxExecutionTime <= 0 {
		return time.Unix(0, 0)
	}
	return time.Now().Add(wf.MaxExecutionTime)
}

// Result is a pattern's terminal outcome.
type Result struct {
	History    []StepResult
	SharedData map[string]any
	Err        error
}

// executeStepWithRetry wraps one step's invocation in the Hook Pipeline
// and applies its resolved retry policy (spec §4.6.1).
func executeStepWithRetry(ctx context.Context, wf *Workflow, step Step, state *SharedState, deadline time.Time) StepResult {
	started := time.Now()
	policy := resolveRetryPolicy(step, wf)
	maxAttempts := 1
	if policy != nil && policy.MaxAttempts > 0 {
		maxAttempts = policy.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return StepResult{
				StepID: step.ID, RetryAttempts: attempt - 1,
				Err:         errs.New(errs.KindTimeout, "workflow.executeStepWithRetry", fmt.Errorf("max_execution_time exceeded")),
				StartedAt:   started,
				CompletedAt: time.Now(),
			}
		}

		out, skipped, err := runStepOnce(ctx, wf, step, state, attempt)
		if err == nil {
			return StepResult{
				StepID: step.ID, Output: out, Skipped: skipped,
				RetryAttempts: attempt - 1, StartedAt: started, CompletedAt: time.Now(),
			}
		}
		if errors.Is(err, ErrConditionNotMet) {
			return StepResult{StepID: step.ID, Skipped: true, RetryAttempts: attempt - 1, StartedAt: started, CompletedAt: time.Now()}
		}

		lastErr = err
		if attempt < maxAttempts {
			delay := computeStepDelay(policy, attempt)
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return StepResult{StepID: step.ID, Err: ctx.Err(), RetryAttempts: attempt, StartedAt: started, CompletedAt: time.Now()}
				}
			}
		}
	}
	return StepResult{StepID: step.ID, Err: lastErr, RetryAttempts: maxAttempts - 1, StartedAt: started, CompletedAt: time.Now()}
}

// runStepOnce threads one attempt through the Hook Pipeline, then the
// step body, honoring the hook chain's Cancel/Skip/Retry/Modify actions.
func runStepOnce(ctx context.Context, wf *Workflow, step Step, state *SharedState, attempt int) (out map[string]any, skipped bool, err error) {
	if wf.Hooks == nil {
		out, err = step.Run(ctx, state)
		return out, false, err
	}

	hctx := hook.Context{Point: PointStepExecute, ComponentID: step.ID, Data: map[string]any{"attempt": attempt}}
	for {
		cr := wf.Hooks.Run(ctx, PointStepExecute, hctx)
		switch cr.FinalAction {
		case hook.ActionCancel:
			return nil, false, errs.NewWithKey(errs.KindHookCancelled, "workflow.runStepOnce", step.ID, fmt.Errorf("%s", cr.Reason))
		case hook.ActionSkip:
			return nil, true, nil
		case hook.ActionRetry:
			if cr.Retry == nil || cr.Retry.RetryRemaining <= 0 {
				return nil, false, errs.NewWithKey(errs.KindHookCancelled, "workflow.runStepOnce", step.ID, fmt.Errorf("hook retry exhausted"))
			}
			if cr.Retry.RetryDelay > 0 {
				timer := time.NewTimer(cr.Retry.RetryDelay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return nil, false, ctx.Err()
				}
			}
			hctx = cr.Context
			continue
		case hook.ActionModify:
			for k, v := range cr.Context.Data {
				state.Set(k, v)
			}
		}
		break
	}

	out, err = step.Run(ctx, state)
	return out, false, err
}

// runStepsSequentially is the body shared by the Sequential executor and
// every pattern's branch/iteration/inner-list semantics (spec §4.6.2's
// sequential executor is also how branches and loop bodies run).
func runStepsSequentially(ctx context.Context, wf *Workflow, steps []Step, state *SharedState, deadline time.Time) ([]StepResult, error) {
	history := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return history, errs.New(errs.KindTimeout, "workflow.runStepsSequentially", fmt.Errorf("max_execution_time exceeded"))
		}

		res := executeStepWithRetry(ctx, wf, step, state, deadline)
		if res.Output != nil {
			state.SetStepOutput(step.ID, res.Output)
		}
		state.RecordStepResult(step.ID, res.Err == nil)
		history = append(history, res)
		state.touchHeartbeat(time.Now())
		if wf.OnHeartbeat != nil {
			wf.OnHeartbeat(time.Now())
		}

		if res.Err == nil {
			if !res.Skipped {
				state.IncrementCounter("completed_steps")
			}
			continue
		}

		switch resolveStepStrategy(step, wf).Kind {
		case StepContinue, StepSkip:
			continue
		default: // StepStop, or Retry already exhausted its attempts above
			return history, res.Err
		}
	}
	return history, nil
}
