// Package builtin provides the Hook Pipeline's built-in hooks: Retry,
// Cost Tracking, Metrics, Logging and Security (spec §4.4).
package builtin

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tarsy-substrate/substrate/hook"
)

// BackoffStrategy selects the delay computation for the Retry hook.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
	BackoffFibonacci   BackoffStrategy = "fibonacci"
)

// Jitter selects how computed delays are randomized.
type Jitter string

const (
	JitterNone         Jitter = "none"
	JitterFull         Jitter = "full"
	JitterEqual        Jitter = "equal"
	JitterDecorrelated Jitter = "decorrelated"
)

// RetryConfig configures the Retry hook.
type RetryConfig struct {
	Priority             uint8
	Points               []hook.Point
	Strategy             BackoffStrategy
	Jitter               Jitter
	BaseDelay            time.Duration
	Multiplier           float64 // used by Exponential; cenkalti/backoff drives this strategy
	MaxAttempts          int
	MaxTotalRetryDuration time.Duration
	RetryablePatterns    []string // e.g. "timeout", "connection_error", "rate_limit", "service_unavailable"
	NonRetryablePatterns []string // take precedence over RetryablePatterns
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		Strategy:    BackoffExponential,
		Jitter:      JitterFull,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2.0,
		MaxAttempts: 3,
		RetryablePatterns: []string{"timeout", "connection_error", "rate_limit", "service_unavailable"},
	}
}

type attemptKey struct {
	component string
	point     hook.Point
}

// RetryHook tracks per-(component, point) attempt counters and computes
// retry delays, mirroring dotcommander-vybe's RetryWithBackoff pattern
// (cenkalti/backoff/v4 for the exponential case) generalized to the
// other three curve shapes the spec names.
type RetryHook struct {
	cfg RetryConfig

	mu       sync.Mutex
	attempts map[attemptKey]int
	started  map[attemptKey]time.Time
	backoffs map[attemptKey]*backoff.ExponentialBackOff
}

// NewRetryHook constructs a RetryHook. Zero-valued fields of cfg fall
// back to sane defaults.
func NewRetryHook(cfg RetryConfig) *RetryHook {
	def := defaultRetryConfig()
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.Jitter == "" {
		cfg.Jitter = def.Jitter
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if len(cfg.RetryablePatterns) == 0 {
		cfg.RetryablePatterns = def.RetryablePatterns
	}
	return &RetryHook{
		cfg:      cfg,
		attempts: make(map[attemptKey]int),
		started:  make(map[attemptKey]time.Time),
		backoffs: make(map[attemptKey]*backoff.ExponentialBackOff),
	}
}

func (h *RetryHook) Name() string    { return "retry" }
func (h *RetryHook) Priority() uint8 { return h.cfg.Priority }
func (h *RetryHook) Replayable() bool { return true }

func (h *RetryHook) AppliesTo(point hook.Point) bool {
	if len(h.cfg.Points) == 0 {
		return true
	}
	for _, p := range h.cfg.Points {
		if p == point {
			return true
		}
	}
	return false
}

// Execute reads ctx.Data["error"] (a string error message from the step
// that just ran) and decides whether to retry. Absence of an error
// resets the attempt counter and continues.
func (h *RetryHook) Execute(_ context.Context, hctx hook.Context) hook.Result {
	key := attemptKey{component: hctx.ComponentID, point: hctx.Point}

	rawErr, failed := hctx.Data["error"]
	if !failed || rawErr == nil {
		h.mu.Lock()
		delete(h.attempts, key)
		delete(h.started, key)
		delete(h.backoffs, key)
		h.mu.Unlock()
		return hook.Result{Action: hook.ActionContinue}
	}

	errMsg, _ := rawErr.(string)
	if h.matches(errMsg, h.cfg.NonRetryablePatterns) {
		return hook.Result{Action: hook.ActionContinue}
	}
	if len(h.cfg.RetryablePatterns) > 0 && !h.matches(errMsg, h.cfg.RetryablePatterns) {
		return hook.Result{Action: hook.ActionContinue}
	}

	h.mu.Lock()
	if _, ok := h.started[key]; !ok {
		h.started[key] = time.Now()
	}
	h.attempts[key]++
	attempt := h.attempts[key]
	elapsed := time.Since(h.started[key])
	h.mu.Unlock()

	if attempt > h.cfg.MaxAttempts {
		return hook.Result{Action: hook.ActionContinue}
	}
	if h.cfg.MaxTotalRetryDuration > 0 && elapsed > h.cfg.MaxTotalRetryDuration {
		return hook.Result{Action: hook.ActionContinue}
	}

	delay := h.computeDelay(key, attempt)
	return hook.Result{
		Action:         hook.ActionRetry,
		RetryDelay:     delay,
		RetryRemaining: h.cfg.MaxAttempts - attempt,
	}
}

func (h *RetryHook) matches(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func (h *RetryHook) computeDelay(key attemptKey, attempt int) time.Duration {
	var base time.Duration
	switch h.cfg.Strategy {
	case BackoffFixed:
		base = h.cfg.BaseDelay
	case BackoffLinear:
		base = h.cfg.BaseDelay * time.Duration(attempt)
	case BackoffFibonacci:
		base = h.cfg.BaseDelay * time.Duration(fibonacci(attempt))
	case BackoffExponential:
		fallthrough
	default:
		base = h.nextExponentialDelay(key)
	}
	return applyJitter(base, h.cfg.Jitter)
}

// nextExponentialDelay advances this key's cenkalti/backoff/v4
// ExponentialBackOff by one step and reports the resulting interval, so
// the Retry hook can report the computed delay to the caller instead of
// sleeping internally — the hook's caller (the Workflow Executor) owns
// the actual wait per spec §4.4. The library's own randomization is
// disabled; applyJitter applies the hook's configured Jitter instead.
func (h *RetryHook) nextExponentialDelay(key attemptKey) time.Duration {
	h.mu.Lock()
	b, ok := h.backoffs[key]
	if !ok {
		b = NewExponentialBackOff(h.cfg)
		b.RandomizationFactor = 0
		b.Reset()
		h.backoffs[key] = b
	}
	h.mu.Unlock()
	return b.NextBackOff()
}

func fibonacci(n int) int64 {
	if n <= 1 {
		return 1
	}
	var a, b int64 = 1, 1
	for i := 2; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

func applyJitter(base time.Duration, j Jitter) time.Duration {
	switch j {
	case JitterFull:
		return time.Duration(rand.Int63n(int64(base) + 1))
	case JitterEqual:
		half := base / 2
		return half + time.Duration(rand.Int63n(int64(half)+1))
	case JitterDecorrelated:
		// Approximation: uniform in [base, base*3], the shape
		// backoff.RandomizedInterval-style decorrelated jitter targets.
		spread := int64(base) * 2
		if spread <= 0 {
			return base
		}
		return base + time.Duration(rand.Int63n(spread))
	default:
		return base
	}
}

// NewExponentialBackOff builds a ready-to-use cenkalti/backoff/v4
// exponential backoff configured per cfg. computeDelay's Exponential
// case uses one of these per retrying component/point to compute its
// delay curve; external callers (e.g. a provider/grpcclient adapter)
// wanting the library's own Retry loop instead of the hook's
// delay-reporting mode can construct one directly the same way.
func NewExponentialBackOff(cfg RetryConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.Multiplier = cfg.Multiplier
	b.MaxElapsedTime = cfg.MaxTotalRetryDuration
	return b
}

var _ hook.Hook = (*RetryHook)(nil)
