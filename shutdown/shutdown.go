// Package shutdown implements the Shutdown Coordinator of spec §4.5:
// single-agent shutdown as a seven-step sequence through the Hook
// Pipeline and the agent's state machine, multi-agent shutdown grouped
// by priority and drained class-by-class, and a broadcast emergency
// shutdown signal. Grounded in the teacher's WorkerPool.Stop graceful
// drain (pkg/queue/pool.go) generalized from "drain one pool" to
// "drain N agents in priority order".
package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tarsy-substrate/substrate/agentfsm"
	"github.com/tarsy-substrate/substrate/errs"
)

// Priority orders shutdown request classes; Critical drains first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBackground
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "background"
	}
}

// Request is a ShutdownRequest per spec §4.5.
type Request struct {
	AgentID        string
	Priority       Priority
	Timeout        time.Duration
	ForceIfTimeout bool
	PreserveState  bool
	Reason         string
	Metadata       map[string]any
}

// Result is the outcome of shutting down one agent.
type Result struct {
	AgentID string
	Forced  bool
	Err     error
}

// Hooks are the three shutdown hook sets fired around the transition
// sequence; each is a list of functions run in order, errors from
// "before" abort the sequence unless ForceIfTimeout, errors from
// "on shutdown" and "after" are logged as warnings only.
type Hooks struct {
	Before      []func(ctx context.Context, req Request) error
	OnShutdown  []func(ctx context.Context, req Request)
	After       []func(ctx context.Context, req Request, result Result)
}

// ResourceDeallocator releases resources attributed to an agent as step
// 5 of the single-agent sequence.
type ResourceDeallocator interface {
	DeallocateAgentResources(ctx context.Context, agentID string) error
}

// Coordinator tracks in-flight shutdown requests and drives the
// single-agent and multi-agent sequences.
type Coordinator struct {
	machines func(agentID string) (*agentfsm.Machine, bool)
	resource ResourceDeallocator
	hooks    Hooks

	mu     sync.Mutex
	active map[string]struct{}

	emergencyMu   sync.Mutex
	emergencySubs []chan struct{}
}

// New constructs a Coordinator. machines resolves an agent id to its
// state machine; resource may be nil if there is nothing to deallocate.
func New(machines func(agentID string) (*agentfsm.Machine, bool), resource ResourceDeallocator, hooks Hooks) *Coordinator {
	return &Coordinator{
		machines: machines,
		resource: resource,
		hooks:    hooks,
		active:   make(map[string]struct{}),
	}
}

// Shutdown executes the single-agent sequence of spec §4.5 steps 1-7.
func (c *Coordinator) Shutdown(ctx context.Context, req Request) Result {
	const op = "shutdown.Shutdown"

	c.mu.Lock()
	if _, already := c.active[req.AgentID]; already {
		c.mu.Unlock()
		return Result{AgentID: req.AgentID, Err: errs.NewWithKey(errs.KindConflict, op, req.AgentID,
			fmt.Errorf("shutdown already in progress for agent %s", req.AgentID))}
	}
	c.active[req.AgentID] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.active, req.AgentID)
		c.mu.Unlock()
	}()

	deadline := time.Now().Add(req.Timeout)
	if req.Timeout <= 0 {
		deadline = time.Time{}
	}

	result := c.runSequence(ctx, req, deadline)

	for _, after := range c.hooks.After {
		after(ctx, req, result)
	}
	return result
}

func (c *Coordinator) runSequence(ctx context.Context, req Request, deadline time.Time) Result {
	machine, ok := c.machines(req.AgentID)
	if !ok {
		return Result{AgentID: req.AgentID, Err: errs.NewWithKey(errs.KindNotFound, "shutdown.Shutdown", req.AgentID, nil)}
	}

	for _, before := range c.hooks.Before {
		if err := before(ctx, req); err != nil {
			if !req.ForceIfTimeout {
				return Result{AgentID: req.AgentID, Err: err}
			}
			slog.Warn("shutdown before-hook failed, forcing shutdown anyway", "agent_id", req.AgentID, "error", err)
		}
	}

	if !deadline.IsZero() && time.Now().After(deadline) {
		return c.forceOrFail(ctx, req, machine, errs.New(errs.KindTimeout, "shutdown.Shutdown", fmt.Errorf("shutdown deadline already passed")))
	}

	if err := machine.Transition(ctx, agentfsm.StateTerminating, req.Reason); err != nil {
		return c.forceOrFail(ctx, req, machine, err)
	}

	for _, onShutdown := range c.hooks.OnShutdown {
		onShutdown(ctx, req)
	}

	if c.resource != nil {
		deallocCtx := ctx
		var cancel context.CancelFunc
		if !deadline.IsZero() {
			deallocCtx, cancel = context.WithDeadline(ctx, deadline)
			defer cancel()
		}
		if err := c.resource.DeallocateAgentResources(deallocCtx, req.AgentID); err != nil {
			return c.forceOrFail(ctx, req, machine, err)
		}
	}

	if err := machine.Transition(ctx, agentfsm.StateTerminated, req.Reason); err != nil {
		return c.forceOrFail(ctx, req, machine, err)
	}

	return Result{AgentID: req.AgentID}
}

func (c *Coordinator) forceOrFail(ctx context.Context, req Request, machine *agentfsm.Machine, cause error) Result {
	if !req.ForceIfTimeout {
		return Result{AgentID: req.AgentID, Err: cause}
	}
	slog.Warn("forcing shutdown after failure", "agent_id", req.AgentID, "error", cause)
	_ = machine.ForceTransition(ctx, agentfsm.StateTerminated, "forced: "+cause.Error())
	if c.resource != nil {
		_ = c.resource.DeallocateAgentResources(ctx, req.AgentID)
	}
	return Result{AgentID: req.AgentID, Forced: true}
}

// ShutdownMany groups requests by priority and processes classes serially
// (Critical first), each class concurrently, per spec §4.5.
func (c *Coordinator) ShutdownMany(ctx context.Context, reqs []Request) []Result {
	byPriority := make(map[Priority][]Request)
	for _, r := range reqs {
		byPriority[r.Priority] = append(byPriority[r.Priority], r)
	}

	classes := make([]Priority, 0, len(byPriority))
	for p := range byPriority {
		classes = append(classes, p)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	var all []Result
	for _, class := range classes {
		classReqs := byPriority[class]
		results := make([]Result, len(classReqs))
		var wg sync.WaitGroup
		for i, r := range classReqs {
			wg.Add(1)
			go func(i int, r Request) {
				defer wg.Done()
				results[i] = c.Shutdown(ctx, r)
			}(i, r)
		}
		wg.Wait()
		all = append(all, results...)
	}
	return all
}

// EmergencySubscribe registers a channel that receives exactly one
// signal per broadcast emergency shutdown event.
func (c *Coordinator) EmergencySubscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	c.emergencyMu.Lock()
	c.emergencySubs = append(c.emergencySubs, ch)
	c.emergencyMu.Unlock()
	return ch
}

// BroadcastEmergencyShutdown signals every subscriber exactly once.
func (c *Coordinator) BroadcastEmergencyShutdown() {
	c.emergencyMu.Lock()
	defer c.emergencyMu.Unlock()
	for _, ch := range c.emergencySubs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
