package workflow

import (
	"sync"
	"time"

	"github.com/tarsy-substrate/substrate/condition"
)

// SharedState is the workflow-run shared state of spec §4.6.1: a
// key->JSON map plus a step_id->output map, writes serialized per
// workflow, reads under a shared read lock so readers do not block one another.
// Grounded in the teacher's session-scoped in-memory maps guarded by a
// single RWMutex (pkg/session.Manager).
type SharedState struct {
	mu          sync.RWMutex
	data        map[string]any
	outputs     map[string]any
	stepResults map[string]condition.StepResult
	dirty       map[string]struct{}
	input       map[string]any

	heartbeatMu sync.Mutex
	heartbeat   time.Time
}

// NewSharedState constructs a SharedState seeded with a workflow run's
// initial input, readable by Parameter(name) data-flow mappings.
func NewSharedState(input map[string]any) *SharedState {
	if input == nil {
		input = map[string]any{}
	}
	return &SharedState{
		data:        make(map[string]any),
		outputs:     make(map[string]any),
		stepResults: make(map[string]condition.StepResult),
		dirty:       make(map[string]struct{}),
		input:       input,
	}
}

// Input returns the workflow run's initial parameters.
func (s *SharedState) Input() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.input))
	for k, v := range s.input {
		out[k] = v
	}
	return out
}

// Get reads a shared-data key.
func (s *SharedState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set writes a shared-data key; writes are serialized per workflow.
func (s *SharedState) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	s.dirty[key] = struct{}{}
}

// IncrementCounter reads key as an int (0 if absent), stores key+1, and
// returns the new value. Used for the completed_steps counter.
func (s *SharedState) IncrementCounter(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := s.data[key].(int)
	n++
	s.data[key] = n
	s.dirty[key] = struct{}{}
	return n
}

// StepOutput reads a prior step's recorded output.
func (s *SharedState) StepOutput(stepID string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.outputs[stepID]
	return v, ok
}

// SetStepOutput records a completed step's output.
func (s *SharedState) SetStepOutput(stepID string, output map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[stepID] = output
}

// RecordStepResult publishes a step's success/failure into the Condition
// Engine context (spec §4.6.1: "published via the Condition Engine
// context").
func (s *SharedState) RecordStepResult(stepID string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepResults[stepID] = condition.StepResult{Success: success, Failed: !success}
}

// Snapshot returns a shallow copy of shared data, safe for a caller to
// range over without holding the lock.
func (s *SharedState) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// StepOutputsSnapshot returns a shallow copy of recorded step outputs.
func (s *SharedState) StepOutputsSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.outputs))
	for k, v := range s.outputs {
		out[k] = v
	}
	return out
}

// EvalContext builds the read-only view the Condition Engine evaluates
// against (spec §4.7's ConditionEvaluationContext).
func (s *SharedState) EvalContext(executionID string) condition.EvaluationContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := make(map[string]any, len(s.data))
	for k, v := range s.data {
		data[k] = v
	}
	outputs := make(map[string]any, len(s.outputs))
	for k, v := range s.outputs {
		outputs[k] = v
	}
	results := make(map[string]condition.StepResult, len(s.stepResults))
	for k, v := range s.stepResults {
		results[k] = v
	}
	return condition.EvaluationContext{
		SharedData:  data,
		StepOutputs: outputs,
		StepResults: results,
		ExecutionID: executionID,
	}
}

// Heartbeat returns the last-recorded step-boundary heartbeat (spec
// SPEC_FULL's supplemented "heartbeat during long operations" feature).
// The Session Manager's staleness sweep does not read it; the sweep uses
// session.Manager.Heartbeat, which a caller can drive from
// Workflow.OnHeartbeat.
func (s *SharedState) Heartbeat() time.Time {
	s.heartbeatMu.Lock()
	defer s.heartbeatMu.Unlock()
	return s.heartbeat
}

func (s *SharedState) touchHeartbeat(now time.Time) {
	s.heartbeatMu.Lock()
	s.heartbeat = now
	s.heartbeatMu.Unlock()
}

// branchView returns an isolated SharedState seeded from a snapshot of
// this state, for a parallel branch's private read view (spec §4.6.5:
// "each parallel branch maintains its own view of shared data for
// reads").
func (s *SharedState) branchView() *SharedState {
	branch := NewSharedState(s.Input())
	for k, v := range s.Snapshot() {
		branch.data[k] = v
	}
	for k, v := range s.StepOutputsSnapshot() {
		branch.outputs[k] = v
	}
	branch.dirty = make(map[string]struct{})
	return branch
}

// dirtyWrites returns the keys this branch view wrote (directly, not
// pre-seeded), for the parent to merge back at branch completion.
func (s *SharedState) dirtyWrites() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.dirty))
	for k := range s.dirty {
		out[k] = s.data[k]
	}
	return out
}
