package builtin

import (
	"context"
	"sync"
	"time"

	"github.com/tarsy-substrate/substrate/hook"
)

// MetricsHook keeps pre/post counters and duration histograms keyed by
// (component, phase), per spec §4.4. It stores raw samples rather than
// a true histogram, which is enough for the assertions the test suite
// makes and for the /metrics surface runtime/adminhttp exposes.
type MetricsHook struct {
	priority uint8

	mu        sync.Mutex
	counts    map[string]int64
	durations map[string][]time.Duration
	starts    map[string]time.Time
}

// NewMetricsHook constructs a MetricsHook.
func NewMetricsHook(priority uint8) *MetricsHook {
	return &MetricsHook{
		priority:  priority,
		counts:    make(map[string]int64),
		durations: make(map[string][]time.Duration),
		starts:    make(map[string]time.Time),
	}
}

func (h *MetricsHook) Name() string       { return "metrics" }
func (h *MetricsHook) Priority() uint8    { return h.priority }
func (h *MetricsHook) Replayable() bool   { return false }
func (h *MetricsHook) AppliesTo(hook.Point) bool { return true }

func metricsKey(component string, point hook.Point) string {
	return component + "/" + string(point)
}

func (h *MetricsHook) Execute(_ context.Context, hctx hook.Context) hook.Result {
	key := metricsKey(hctx.ComponentID, hctx.Point)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.counts[key]++

	if start, ok := h.starts[key]; ok {
		h.durations[key] = append(h.durations[key], time.Since(start))
		delete(h.starts, key)
	} else {
		h.starts[key] = time.Now()
	}

	return hook.Result{Action: hook.ActionContinue}
}

// Count returns the number of executions recorded for (component, point).
func (h *MetricsHook) Count(component string, point hook.Point) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[metricsKey(component, point)]
}

// Durations returns recorded phase durations for (component, point).
func (h *MetricsHook) Durations(component string, point hook.Point) []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]time.Duration, len(h.durations[metricsKey(component, point)]))
	copy(out, h.durations[metricsKey(component, point)])
	return out
}

// Snapshot returns a copy of every (component/point) execution count
// recorded so far, keyed the same way metricsKey builds them, for the
// runtime/adminhttp status surface.
func (h *MetricsHook) Snapshot() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int64, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

var _ hook.Hook = (*MetricsHook)(nil)
