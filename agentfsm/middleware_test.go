package agentfsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMiddleware struct {
	BaseMiddleware
	name  string
	log   *[]string
	fail  bool
}

func (m *recordingMiddleware) Before(_ context.Context, pctx *PhaseContext) {
	*m.log = append(*m.log, m.name+":before")
	if m.fail {
		pctx.Data["_error"] = errors.New(m.name + " failed")
	}
}

func (m *recordingMiddleware) After(context.Context, *PhaseContext) {
	*m.log = append(*m.log, m.name+":after")
}

func (m *recordingMiddleware) OnError(context.Context, *PhaseContext, error) {
	*m.log = append(*m.log, m.name+":on_error")
}

func TestChain_BeforeRunsInPriorityOrderAfterInReverse(t *testing.T) {
	var log []string
	c := NewChain(false)
	c.Register(&recordingMiddleware{BaseMiddleware: BaseMiddleware{PriorityValue: 2}, name: "b", log: &log})
	c.Register(&recordingMiddleware{BaseMiddleware: BaseMiddleware{PriorityValue: 1}, name: "a", log: &log})

	err := c.Run(context.Background(), "agent-1", PhaseTaskExecution, func(context.Context) error {
		log = append(log, "body")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:before", "b:before", "body", "b:after", "a:after"}, log)
}

func TestChain_BeforeErrorSkipsBodyAndRunsOnError(t *testing.T) {
	var log []string
	c := NewChain(false)
	c.Register(&recordingMiddleware{BaseMiddleware: BaseMiddleware{PriorityValue: 1}, name: "a", log: &log, fail: true})
	c.Register(&recordingMiddleware{BaseMiddleware: BaseMiddleware{PriorityValue: 2}, name: "b", log: &log})

	bodyRan := false
	err := c.Run(context.Background(), "agent-1", PhaseTaskExecution, func(context.Context) error {
		bodyRan = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, bodyRan)
	assert.Contains(t, log, "a:on_error")
	assert.NotContains(t, log, "b:before", "remaining before-hooks are skipped once continue_on_error is false")
}

func TestChain_BodyFailureRunsOnErrorAscending(t *testing.T) {
	var log []string
	c := NewChain(false)
	c.Register(&recordingMiddleware{BaseMiddleware: BaseMiddleware{PriorityValue: 2}, name: "b", log: &log})
	c.Register(&recordingMiddleware{BaseMiddleware: BaseMiddleware{PriorityValue: 1}, name: "a", log: &log})

	err := c.Run(context.Background(), "agent-1", PhaseTaskExecution, func(context.Context) error {
		return errors.New("body failed")
	})
	assert.Error(t, err)
	assert.Equal(t, []string{"a:before", "b:before", "a:on_error", "b:on_error"}, log)
}

func TestChain_OnlyApplicableMiddlewareRuns(t *testing.T) {
	var log []string
	c := NewChain(false)
	c.Register(&recordingMiddleware{BaseMiddleware: BaseMiddleware{Phases: []Phase{PhaseShutdown}}, name: "shutdown-only", log: &log})

	err := c.Run(context.Background(), "agent-1", PhaseTaskExecution, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Empty(t, log)
}
