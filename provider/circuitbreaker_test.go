package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-substrate/substrate/errs"
)

type fakeClient struct {
	fail  bool
	calls int
}

func (f *fakeClient) Complete(context.Context, AgentInput) (AgentOutput, error) {
	f.calls++
	if f.fail {
		return AgentOutput{}, errors.New("boom")
	}
	return AgentOutput{Text: "ok"}, nil
}

func (f *fakeClient) CompleteStreaming(context.Context, AgentInput) (<-chan Chunk, error) {
	return nil, ErrStreamingUnsupported
}

func (f *fakeClient) Capabilities() Capabilities { return Capabilities{} }
func (f *fakeClient) Validate(context.Context) error { return nil }
func (f *fakeClient) Close() error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &fakeClient{fail: true}
	cb := &CircuitBreaker{Client: inner, Threshold: 3}

	for i := 0; i < 3; i++ {
		_, err := cb.Complete(context.Background(), AgentInput{})
		require.Error(t, err)
	}
	assert.Equal(t, 3, inner.calls)

	_, err := cb.Complete(context.Background(), AgentInput{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindCircuitOpen))
	assert.Equal(t, 3, inner.calls, "the 4th call must not reach the wrapped client")
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	inner := &fakeClient{fail: true}
	cb := &CircuitBreaker{Client: inner, Threshold: 2}

	_, _ = cb.Complete(context.Background(), AgentInput{})
	inner.fail = false
	_, err := cb.Complete(context.Background(), AgentInput{})
	require.NoError(t, err)

	inner.fail = true
	_, err = cb.Complete(context.Background(), AgentInput{})
	require.Error(t, err)
	assert.False(t, errs.Is(err, errs.KindCircuitOpen), "failure count should have reset after the success")
}

func TestCircuitBreaker_HalfOpensAfterResetDelay(t *testing.T) {
	inner := &fakeClient{fail: true}
	cb := &CircuitBreaker{Client: inner, Threshold: 1, ResetAfter: 20 * time.Millisecond}

	_, err := cb.Complete(context.Background(), AgentInput{})
	require.Error(t, err)
	_, err = cb.Complete(context.Background(), AgentInput{})
	assert.True(t, errs.Is(err, errs.KindCircuitOpen))

	time.Sleep(30 * time.Millisecond)
	inner.fail = false
	_, err = cb.Complete(context.Background(), AgentInput{})
	require.NoError(t, err)
}
