// Package hook implements the Hook Pipeline of spec §4.4: ordered,
// prioritized hook execution with per-hook timeout and replay support.
// The priority-ordered, context-threading execution loop is grounded in
// the teacher's pkg/agent middleware chain pattern (before/after/on_error
// wrapping a phase), generalized here to hook points instead of lifecycle
// phases.
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tarsy-substrate/substrate/errs"
)

// Point identifies where in an operation's lifecycle a hook runs.
type Point string

// Action is the disposition a HookResult carries.
type Action string

const (
	ActionContinue Action = "continue"
	ActionCancel   Action = "cancel"
	ActionRetry    Action = "retry"
	ActionModify   Action = "modify"
	ActionSkip     Action = "skip"
)

// Context is the mutable payload threaded through a hook chain. Data
// carries arbitrary hook-specific state (e.g. token_usage, attempt
// counters); Modify results replace it wholesale for subsequent hooks.
type Context struct {
	Point       Point
	ComponentID string
	Data        map[string]any
}

// Clone returns a deep-enough copy for Modify results to mutate safely.
func (c Context) Clone() Context {
	data := make(map[string]any, len(c.Data))
	for k, v := range c.Data {
		data[k] = v
	}
	return Context{Point: c.Point, ComponentID: c.ComponentID, Data: data}
}

// Result is the outcome of one hook's execution.
type Result struct {
	Action             Action
	Reason             string        // set for Cancel
	RetryDelay         time.Duration // set for Retry
	RetryRemaining     int           // set for Retry
	ModifiedContext    Context       // set for Modify
	Err                error         // hook-internal error, if any
}

// Hook is the pipeline's unit of work.
type Hook interface {
	Name() string
	Priority() uint8
	AppliesTo(point Point) bool
	Execute(ctx context.Context, hctx Context) Result
	// Replayable reports whether this hook's execution should be captured
	// in replay dumps (spec §4.4 "Replayability").
	Replayable() bool
}

// ChainResult is the outcome of running an entire hook chain.
type ChainResult struct {
	FinalAction Action
	Context     Context
	Cancelled   bool
	Reason      string
	Retry       *Result // non-nil when the chain ended in Retry
	Errors      []error // hook-internal errors collected when continue_on_error is set
}

// ReplayRecord captures one hook's execution for later replay.
type ReplayRecord struct {
	HookName string
	Point    Point
	Input    Context
	Result   Result
	At       time.Time
}

// Pipeline runs registered hooks in priority order for a given point.
type Pipeline struct {
	mu                sync.RWMutex
	hooks             []Hook
	defaultTimeout    time.Duration
	continueOnError   bool

	replayMu sync.Mutex
	replay   []ReplayRecord
}

// New constructs a Pipeline. defaultTimeout bounds each hook's
// execution; a non-positive value selects 5s (spec §4.4 default).
func New(defaultTimeout time.Duration, continueOnError bool) *Pipeline {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	return &Pipeline{defaultTimeout: defaultTimeout, continueOnError: continueOnError}
}

// Register adds a hook to the pipeline.
func (p *Pipeline) Register(h Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, h)
}

// Run executes the chain of enabled, applicable hooks for point against
// hctx, per spec §4.4's execution contract.
func (p *Pipeline) Run(ctx context.Context, point Point, hctx Context) ChainResult {
	p.mu.RLock()
	applicable := make([]Hook, 0, len(p.hooks))
	for _, h := range p.hooks {
		if h.AppliesTo(point) {
			applicable = append(applicable, h)
		}
	}
	p.mu.RUnlock()

	sort.SliceStable(applicable, func(i, j int) bool {
		return applicable[i].Priority() < applicable[j].Priority()
	})

	current := hctx
	var errsCollected []error

	for _, h := range applicable {
		result := p.runOne(ctx, h, point, current)

		if result.Err != nil {
			errsCollected = append(errsCollected, fmt.Errorf("%s: %w", h.Name(), result.Err))
			if !p.continueOnError {
				return ChainResult{
					FinalAction: ActionCancel,
					Context:     current,
					Cancelled:   true,
					Reason:      result.Err.Error(),
					Errors:      errsCollected,
				}
			}
			continue
		}

		switch result.Action {
		case ActionContinue:
			continue
		case ActionModify:
			current = result.ModifiedContext
		case ActionSkip:
			return ChainResult{FinalAction: ActionSkip, Context: current, Errors: errsCollected}
		case ActionCancel:
			return ChainResult{
				FinalAction: ActionCancel,
				Context:     current,
				Cancelled:   true,
				Reason:      result.Reason,
				Errors:      errsCollected,
			}
		case ActionRetry:
			r := result
			return ChainResult{FinalAction: ActionRetry, Context: current, Retry: &r, Errors: errsCollected}
		default:
			errsCollected = append(errsCollected, fmt.Errorf("%s: unknown action %q", h.Name(), result.Action))
		}
	}

	return ChainResult{FinalAction: ActionContinue, Context: current, Errors: errsCollected}
}

func (p *Pipeline) runOne(ctx context.Context, h Hook, point Point, hctx Context) Result {
	timeout := p.defaultTimeout
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result Result
	}
	done := make(chan outcome, 1)
	go func() {
		done <- outcome{result: h.Execute(hookCtx, hctx)}
	}()

	var result Result
	select {
	case o := <-done:
		result = o.result
	case <-hookCtx.Done():
		result = Result{Action: ActionCancel, Reason: "timeout"}
	}

	if h.Replayable() {
		p.replayMu.Lock()
		p.replay = append(p.replay, ReplayRecord{HookName: h.Name(), Point: point, Input: hctx, Result: result, At: time.Now()})
		p.replayMu.Unlock()
	}

	if result.Err != nil {
		slog.Warn("hook execution error", "hook", h.Name(), "point", point, "error", result.Err)
	}

	return result
}

// ReplayLog returns the recorded replayable hook executions, in
// execution order.
func (p *Pipeline) ReplayLog() []ReplayRecord {
	p.replayMu.Lock()
	defer p.replayMu.Unlock()
	out := make([]ReplayRecord, len(p.replay))
	copy(out, p.replay)
	return out
}

// ErrHookTimeout is the Timeout-kind error value for a hook that does not
// complete within its timeout. Pipeline does not return it: a timed-out
// hook is reported as a synthesized Cancel with Reason "timeout" and no Err.
var ErrHookTimeout = errs.New(errs.KindTimeout, "hook.Run", fmt.Errorf("hook exceeded timeout"))
