package workflow

import "time"

// WorkflowStrategyKind is the per-workflow error strategy of spec §4.6.1.
type WorkflowStrategyKind string

const (
	StrategyFailFast WorkflowStrategyKind = "fail_fast"
	StrategyContinue WorkflowStrategyKind = "continue"
	StrategyRetry    WorkflowStrategyKind = "retry"
)

// WorkflowErrorStrategy is the workflow-level default error strategy.
type WorkflowErrorStrategy struct {
	Kind        WorkflowStrategyKind
	MaxAttempts int
	BaseDelay   time.Duration
}

// StepStrategyKind is the per-step error strategy of spec §4.6.1, which
// may override or inherit the workflow default.
type StepStrategyKind string

const (
	StepInherit  StepStrategyKind = "inherit"
	StepStop     StepStrategyKind = "stop"
	StepContinue StepStrategyKind = "continue"
	StepSkip     StepStrategyKind = "skip"
	StepRetry    StepStrategyKind = "retry"
)

// StepErrorStrategy is one step's error-handling policy.
type StepErrorStrategy struct {
	Kind        StepStrategyKind
	MaxAttempts int
	BaseDelay   time.Duration
}

// RetryPolicy is the executor-level retry shorthand distinct from the
// Retry built-in hook (spec §9 "Retries vs. hooks"): Fixed multiplier of
// 2.0 mirrors the exponential curve used throughout the E2E scenarios.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// resolveStepStrategy applies spec §4.6.1's Inherit mapping: a step
// strategy of Inherit (or the zero value) adopts the workflow's default,
// translated to the step-level vocabulary.
func resolveStepStrategy(step Step, wf *Workflow) StepErrorStrategy {
	s := step.ErrorStrategy
	if s.Kind != "" && s.Kind != StepInherit {
		return s
	}
	switch wf.ErrorStrategy.Kind {
	case StrategyContinue:
		return StepErrorStrategy{Kind: StepContinue}
	case StrategyRetry:
		return StepErrorStrategy{Kind: StepRetry, MaxAttempts: wf.ErrorStrategy.MaxAttempts, BaseDelay: wf.ErrorStrategy.BaseDelay}
	default:
		return StepErrorStrategy{Kind: StepStop}
	}
}

// resolveRetryPolicy returns the effective retry policy for a step: its
// own RetryPolicy overrides the workflow default (spec §4.6.1:
// "applies the step's retry policy (overriding the workflow default)").
func resolveRetryPolicy(step Step, wf *Workflow) *RetryPolicy {
	if step.RetryPolicy != nil {
		return step.RetryPolicy
	}
	strat := resolveStepStrategy(step, wf)
	if strat.Kind == StepRetry {
		maxAttempts := strat.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 1
		}
		return &RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: strat.BaseDelay, Multiplier: 2.0}
	}
	return nil
}

func computeStepDelay(policy *RetryPolicy, attempt int) time.Duration {
	if policy == nil || policy.BaseDelay <= 0 {
		return 0
	}
	multiplier := policy.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := float64(policy.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= multiplier
	}
	return time.Duration(delay)
}
