// Package agentfsm implements the Agent State Machine and Lifecycle
// Middleware of spec §4.5: a strict-edge-set DAG of lifecycle states,
// serialized per agent, with a bounded transition history and a
// before/after/on_error middleware chain wrapping coarse lifecycle
// phases. The mutex-guarded state plus recorded-transition-log shape is
// grounded in the teacher's connection-pool lifecycle accounting
// (`pkg/database/client.go`) and in the lifecycle state-guard pattern
// used across the retrieval pack's agent-runtime repos.
package agentfsm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tarsy-substrate/substrate/errs"
)

// State is one node of the agent lifecycle DAG (spec §3).
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateRunning       State = "running"
	StatePaused        State = "paused"
	StateTerminating   State = "terminating"
	StateTerminated    State = "terminated"
	StateFailed        State = "failed"
)

// allowedEdges is the strict edge set of spec §3: the linear chain plus
// the Running<->Paused cycle, plus "any state may transition to Failed".
// Terminated and Failed are terminal (no outgoing edges).
var allowedEdges = map[State][]State{
	StateUninitialized: {StateInitializing},
	StateInitializing:  {StateReady},
	StateReady:         {StateRunning},
	StateRunning:       {StatePaused, StateTerminating},
	StatePaused:        {StateRunning, StateTerminating},
	StateTerminating:   {StateTerminated},
	StateTerminated:    {},
	StateFailed:        {},
}

func canTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateTerminated && from != StateFailed
	}
	for _, allowed := range allowedEdges[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition is one recorded (from, to) edge traversal.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// historySize is the default bounded ring buffer size (spec §4.5: 1024).
const historySize = 1024

// pendingTransition is one entry in an agent's serialized FIFO queue.
type pendingTransition struct {
	to     State
	reason string
	force  bool
	result chan error
}

// Machine is one agent's state machine: strictly serialized transitions
// via a FIFO queue, with a bounded transition ring buffer.
type Machine struct {
	agentID string

	mu      sync.Mutex
	current State
	history []Transition
	head    int
	filled  bool

	queue   chan pendingTransition
	closeCh chan struct{}
	once    sync.Once

	onTransition func(Transition)
}

// New constructs a Machine starting in StateUninitialized and starts its
// serialized transition worker. Call Close to stop the worker.
func New(agentID string, onTransition func(Transition)) *Machine {
	m := &Machine{
		agentID:      agentID,
		current:      StateUninitialized,
		history:      make([]Transition, historySize),
		queue:        make(chan pendingTransition, 64),
		closeCh:      make(chan struct{}),
		onTransition: onTransition,
	}
	go m.run()
	return m
}

func (m *Machine) run() {
	for {
		select {
		case <-m.closeCh:
			return
		case req := <-m.queue:
			req.result <- m.applyLocked(req.to, req.reason, req.force)
		}
	}
}

// Close stops the transition worker. Pending requests already queued are
// still drained before shutdown completes.
func (m *Machine) Close() {
	m.once.Do(func() {
		// Drain remaining queued requests so callers awaiting on result
		// channels are not left blocked.
		for {
			select {
			case req := <-m.queue:
				req.result <- errs.New(errs.KindInvalidTransition, "agentfsm.Close", fmt.Errorf("state machine closed"))
			default:
				close(m.closeCh)
				return
			}
		}
	})
}

// Current returns the agent's current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition requests a transition to `to`, with an optional reason.
// Requests are serialized per agent into a FIFO queue: the first in the
// queue wins, subsequent ones re-check validity against whatever state
// that first transition left the agent in (spec §4.5).
func (m *Machine) Transition(ctx context.Context, to State, reason string) error {
	return m.transition(ctx, to, reason, false)
}

// ForceTransition bypasses the edge-set check entirely, for the Shutdown
// Coordinator's force-if-timeout path (spec §4.5: "unconditional state
// transition + resource release").
func (m *Machine) ForceTransition(ctx context.Context, to State, reason string) error {
	return m.transition(ctx, to, reason, true)
}

func (m *Machine) transition(ctx context.Context, to State, reason string, force bool) error {
	result := make(chan error, 1)
	select {
	case m.queue <- pendingTransition{to: to, reason: reason, force: force, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closeCh:
		return errs.New(errs.KindInvalidTransition, "agentfsm.Transition", fmt.Errorf("state machine closed"))
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) applyLocked(to State, reason string, force bool) error {
	m.mu.Lock()
	from := m.current
	if !force && !canTransition(from, to) {
		m.mu.Unlock()
		slog.Warn("agent state transition rejected", "agent_id", m.agentID, "from", from, "to", to, "reason", reason)
		return errs.NewWithKey(errs.KindInvalidTransition, "agentfsm.Transition", m.agentID,
			fmt.Errorf("cannot transition from %s to %s", from, to))
	}

	m.current = to
	tr := Transition{From: from, To: to, Reason: reason, Timestamp: time.Now()}
	m.history[m.head] = tr
	m.head = (m.head + 1) % historySize
	if m.head == 0 {
		m.filled = true
	}
	m.mu.Unlock()

	slog.Info("agent state transition", "agent_id", m.agentID, "from", from, "to", to, "reason", reason)
	if m.onTransition != nil {
		m.onTransition(tr)
	}
	return nil
}

// History returns recorded transitions oldest-first, bounded to the
// ring buffer's capacity.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.filled {
		out := make([]Transition, m.head)
		copy(out, m.history[:m.head])
		return out
	}
	out := make([]Transition, historySize)
	copy(out, m.history[m.head:])
	copy(out[historySize-m.head:], m.history[:m.head])
	return out
}

// IsTerminal reports whether the agent's current state has no outgoing
// edges (Terminated or Failed).
func (m *Machine) IsTerminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(allowedEdges[m.current]) == 0
}
