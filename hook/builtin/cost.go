package builtin

import (
	"context"
	"fmt"
	"sync"

	"github.com/tarsy-substrate/substrate/hook"
)

// AlertLevel classifies a budget alert's severity.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// BudgetAlert configures one threshold in the Cost Tracking hook's ladder.
type BudgetAlert struct {
	ThresholdUSD float64
	Level        AlertLevel
	Blocking     bool // Cancel is emitted once this threshold is exceeded
}

// PricingTable maps a (provider, model) pair to a per-1K-token USD price.
type PricingTable map[string]map[string]float64

// CostHook accumulates per-component spend from ctx.Data["token_usage"]
// and emits budget alerts, cancelling when a blocking threshold is
// crossed, per spec §4.4.
type CostHook struct {
	priority uint8
	pricing  PricingTable
	alerts   []BudgetAlert

	mu      sync.Mutex
	spentBy map[string]float64 // keyed by component id
}

// TokenUsage is the shape expected under ctx.Data["token_usage"].
type TokenUsage struct {
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// NewCostHook constructs a CostHook. alerts should be sorted ascending
// by ThresholdUSD by the caller; evaluation order follows the slice.
func NewCostHook(priority uint8, pricing PricingTable, alerts []BudgetAlert) *CostHook {
	return &CostHook{
		priority: priority,
		pricing:  pricing,
		alerts:   alerts,
		spentBy:  make(map[string]float64),
	}
}

func (h *CostHook) Name() string       { return "cost_tracking" }
func (h *CostHook) Priority() uint8    { return h.priority }
func (h *CostHook) Replayable() bool   { return false }
func (h *CostHook) AppliesTo(hook.Point) bool { return true }

// SpentBy returns the running total attributed to component, for
// diagnostics/tests.
func (h *CostHook) SpentBy(component string) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.spentBy[component]
}

func (h *CostHook) Execute(_ context.Context, hctx hook.Context) hook.Result {
	raw, ok := hctx.Data["token_usage"]
	if !ok {
		return hook.Result{Action: hook.ActionContinue}
	}
	usage, ok := raw.(TokenUsage)
	if !ok {
		return hook.Result{Action: hook.ActionContinue}
	}

	price := h.pricePerThousand(usage.Provider, usage.Model)
	cost := price * float64(usage.InputTokens+usage.OutputTokens) / 1000.0

	h.mu.Lock()
	h.spentBy[hctx.ComponentID] += cost
	total := h.spentBy[hctx.ComponentID]
	h.mu.Unlock()

	var highestLevel AlertLevel
	var blockingBreached *BudgetAlert
	for i := range h.alerts {
		alert := h.alerts[i]
		if total >= alert.ThresholdUSD {
			highestLevel = alert.Level
			if alert.Blocking {
				blockingBreached = &h.alerts[i]
			}
		}
	}

	if blockingBreached != nil {
		return hook.Result{
			Action: hook.ActionCancel,
			Reason: fmt.Sprintf("cost budget limit exceeded: $%.2f >= $%.2f", total, blockingBreached.ThresholdUSD),
		}
	}

	modified := hctx.Clone()
	if highestLevel != "" {
		modified.Data["budget_alert_level"] = highestLevel
		modified.Data["budget_spent_usd"] = total
		return hook.Result{Action: hook.ActionModify, ModifiedContext: modified}
	}

	return hook.Result{Action: hook.ActionContinue}
}

func (h *CostHook) pricePerThousand(provider, model string) float64 {
	if byModel, ok := h.pricing[provider]; ok {
		if price, ok := byModel[model]; ok {
			return price
		}
	}
	return 0
}

var _ hook.Hook = (*CostHook)(nil)
