package provider

import (
	"context"
	"sync"
	"time"

	"github.com/tarsy-substrate/substrate/errs"
)

// CircuitBreaker wraps a Client and opens after Threshold consecutive
// failures (spec §8 boundary behavior): while open, further calls return
// errs.KindCircuitOpen without invoking the wrapped Client. The circuit
// half-opens after ResetAfter elapses, letting the next call probe the
// provider; a successful probe closes the circuit, a failed one reopens
// it and restarts the timer.
type CircuitBreaker struct {
	Client    Client
	Threshold int
	ResetAfter time.Duration

	mu              sync.Mutex
	consecutiveFail int
	openedAt        time.Time
}

var _ Client = (*CircuitBreaker)(nil)

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consecutiveFail < b.Threshold {
		return true
	}
	if b.ResetAfter > 0 && time.Since(b.openedAt) >= b.ResetAfter {
		return true // half-open probe
	}
	return false
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.consecutiveFail++
		if b.consecutiveFail >= b.Threshold {
			b.openedAt = time.Now()
		}
		return
	}
	b.consecutiveFail = 0
}

func (b *CircuitBreaker) Complete(ctx context.Context, input AgentInput) (AgentOutput, error) {
	if !b.allow() {
		return AgentOutput{}, errs.New(errs.KindCircuitOpen, "provider.CircuitBreaker.Complete", errCircuitOpen)
	}
	out, err := b.Client.Complete(ctx, input)
	b.record(err)
	return out, err
}

func (b *CircuitBreaker) CompleteStreaming(ctx context.Context, input AgentInput) (<-chan Chunk, error) {
	if !b.allow() {
		return nil, errs.New(errs.KindCircuitOpen, "provider.CircuitBreaker.CompleteStreaming", errCircuitOpen)
	}
	ch, err := b.Client.CompleteStreaming(ctx, input)
	b.record(err)
	return ch, err
}

func (b *CircuitBreaker) Capabilities() Capabilities { return b.Client.Capabilities() }

func (b *CircuitBreaker) Validate(ctx context.Context) error { return b.Client.Validate(ctx) }

func (b *CircuitBreaker) Close() error { return b.Client.Close() }

var errCircuitOpen = circuitOpenError{}

type circuitOpenError struct{}

func (circuitOpenError) Error() string { return "circuit breaker open: threshold consecutive failures" }
