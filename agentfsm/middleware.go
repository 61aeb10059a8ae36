package agentfsm

import (
	"context"
	"sort"
)

// Phase is a coarse lifecycle stage wrapped by middleware, per spec §4.5.
type Phase string

const (
	PhaseInitialization   Phase = "initialization"
	PhaseStateTransition  Phase = "state_transition"
	PhaseTaskExecution    Phase = "task_execution"
	PhaseResourceAllocation Phase = "resource_allocation"
	PhaseHealthCheck      Phase = "health_check"
	PhaseShutdown         Phase = "shutdown"
	PhaseErrorHandling    Phase = "error_handling"
)

// PhaseContext carries data through a middleware-wrapped phase. Setting
// Data["_error"] signals a before-hook failure per spec §4.5.
type PhaseContext struct {
	AgentID string
	Phase   Phase
	Data    map[string]any
}

// Middleware wraps an entire lifecycle phase, independent of and
// coarser-grained than the Hook Pipeline.
type Middleware interface {
	Priority() uint8
	AppliesTo(phase Phase) bool
	Before(ctx context.Context, pctx *PhaseContext)
	After(ctx context.Context, pctx *PhaseContext)
	OnError(ctx context.Context, pctx *PhaseContext, err error)
}

// Chain runs a registered set of Middleware around a phase body.
type Chain struct {
	middlewares     []Middleware
	continueOnError bool
}

// NewChain constructs a Chain.
func NewChain(continueOnError bool) *Chain {
	return &Chain{continueOnError: continueOnError}
}

// Register adds a Middleware to the chain.
func (c *Chain) Register(m Middleware) {
	c.middlewares = append(c.middlewares, m)
}

func (c *Chain) applicable(phase Phase) []Middleware {
	var out []Middleware
	for _, m := range c.middlewares {
		if m.AppliesTo(phase) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() < out[j].Priority() })
	return out
}

// Run wraps body with the chain's before/after/on_error middleware for
// phase, per spec §4.5's execution contract: before-hooks run in
// priority order; a before-hook setting Data["_error"] with
// continueOnError=false skips remaining before-hooks and falls through
// to on_error without running body. Otherwise body runs; on success,
// after-hooks run in reverse priority order; on failure, on_error hooks
// run in ascending priority order.
func (c *Chain) Run(ctx context.Context, agentID string, phase Phase, body func(ctx context.Context) error) error {
	pctx := &PhaseContext{AgentID: agentID, Phase: phase, Data: make(map[string]any)}
	applicable := c.applicable(phase)

	var beforeErr error
	for _, m := range applicable {
		m.Before(ctx, pctx)
		if raw, ok := pctx.Data["_error"]; ok {
			if err, ok := raw.(error); ok && err != nil {
				beforeErr = err
				if !c.continueOnError {
					break
				}
			}
		}
	}

	if beforeErr != nil && !c.continueOnError {
		c.runOnError(ctx, applicable, pctx, beforeErr)
		return beforeErr
	}

	err := body(ctx)
	if err != nil {
		c.runOnError(ctx, applicable, pctx, err)
		return err
	}

	for i := len(applicable) - 1; i >= 0; i-- {
		applicable[i].After(ctx, pctx)
	}
	return nil
}

func (c *Chain) runOnError(ctx context.Context, applicable []Middleware, pctx *PhaseContext, err error) {
	for _, m := range applicable {
		m.OnError(ctx, pctx, err)
	}
}

// BaseMiddleware is an embeddable no-op Middleware; concrete middlewares
// embed it and override only the hooks they need, the way the teacher's
// controller package composes small single-purpose types.
type BaseMiddleware struct {
	PriorityValue uint8
	Phases        []Phase
}

func (b BaseMiddleware) Priority() uint8 { return b.PriorityValue }

func (b BaseMiddleware) AppliesTo(phase Phase) bool {
	if len(b.Phases) == 0 {
		return true
	}
	for _, p := range b.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

func (b BaseMiddleware) Before(context.Context, *PhaseContext)          {}
func (b BaseMiddleware) After(context.Context, *PhaseContext)           {}
func (b BaseMiddleware) OnError(context.Context, *PhaseContext, error)  {}

var _ Middleware = BaseMiddleware{}
