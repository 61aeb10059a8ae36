package builtin

import (
	"context"
	"fmt"

	"github.com/tarsy-substrate/substrate/hook"
)

// SecurityPolicy is a per-phase requirement enforced against untrusted
// components, per spec §4.4.
type SecurityPolicy struct {
	Points            []hook.Point
	RequireAuthToken  bool
	DowngradeResourceLimitTag string // if set, ctx.Data["resource_limit"] is overwritten with this value
}

// SecurityHook enforces SecurityPolicy for components flagged untrusted
// (ctx.Data["untrusted"] == true).
type SecurityHook struct {
	priority uint8
	policies []SecurityPolicy
}

// NewSecurityHook constructs a SecurityHook.
func NewSecurityHook(priority uint8, policies []SecurityPolicy) *SecurityHook {
	return &SecurityHook{priority: priority, policies: policies}
}

func (h *SecurityHook) Name() string       { return "security" }
func (h *SecurityHook) Priority() uint8    { return h.priority }
func (h *SecurityHook) Replayable() bool   { return true }
func (h *SecurityHook) AppliesTo(hook.Point) bool { return true }

func (h *SecurityHook) Execute(_ context.Context, hctx hook.Context) hook.Result {
	untrusted, _ := hctx.Data["untrusted"].(bool)
	if !untrusted {
		return hook.Result{Action: hook.ActionContinue}
	}

	modified := hctx.Clone()
	changed := false

	for _, policy := range h.policies {
		if !appliesToPoint(policy.Points, hctx.Point) {
			continue
		}
		if policy.RequireAuthToken {
			if _, ok := modified.Data["auth_token"]; !ok {
				return hook.Result{
					Action: hook.ActionCancel,
					Reason: fmt.Sprintf("security policy: auth_token required for point %q", hctx.Point),
				}
			}
		}
		if policy.DowngradeResourceLimitTag != "" {
			modified.Data["resource_limit"] = policy.DowngradeResourceLimitTag
			changed = true
		}
	}

	if changed {
		return hook.Result{Action: hook.ActionModify, ModifiedContext: modified}
	}
	return hook.Result{Action: hook.ActionContinue}
}

func appliesToPoint(points []hook.Point, point hook.Point) bool {
	if len(points) == 0 {
		return true
	}
	for _, p := range points {
		if p == point {
			return true
		}
	}
	return false
}

var _ hook.Hook = (*SecurityHook)(nil)
