// Package condition implements the pure Condition Engine described in
// spec §4.7: a recursive boolean evaluator over workflow shared state and
// step results, bounded by a wall-clock budget. Grounded in
// kadirpekel-hector's workflow/types.go condition tree (And/Or/Not/Custom
// combinators over a plain evaluation context) adapted to this runtime's
// EvaluationContext shape and extended with the rest of spec §3's
// Condition sum type (Always, Never, SharedDataExists,
// StepResultEquals, SharedDataEquals, StepSucceeded, StepFailed).
package condition

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/tarsy-substrate/substrate/errs"
)

// EvaluationContext is the read-only view a Condition evaluates against.
type EvaluationContext struct {
	SharedData  map[string]any
	StepOutputs map[string]any
	StepResults map[string]StepResult
	ExecutionID string
}

// StepResult is the minimal shape a condition can query about a step.
type StepResult struct {
	Success bool
	Failed  bool
}

// Kind identifies a Condition's combinator.
type Kind string

const (
	KindAlways           Kind = "always"
	KindNever            Kind = "never"
	KindAnd              Kind = "and"
	KindOr               Kind = "or"
	KindNot              Kind = "not"
	KindCustom           Kind = "custom"
	KindSharedDataExists Kind = "shared_data_exists"
	KindStepResultEquals Kind = "step_result_equals"
)

// Condition is a node in the evaluation tree (spec §3's Condition sum
// type). Which fields are meaningful depends on Kind: Children for
// And/Or/Not, Expression for Custom, Key for SharedDataExists and
// StepResultEquals (a shared-data key and a step ID respectively), Value
// for StepResultEquals. Always/Never use none.
type Condition struct {
	Kind       Kind
	Children   []Condition
	Expression string // e.g. "shared_data.data_type == csv" or "step_result.fetch.success"
	Key        string
	Value      any
}

// Result is the outcome of evaluating a Condition: exactly one of a
// boolean value or an error, matching spec §4.7's "Errors ... propagate
// as Error results and do not count as truth".
type Result struct {
	Value bool
	Err   error
}

func ok(v bool) Result  { return Result{Value: v} }
func fail(err error) Result { return Result{Err: err} }

// DefaultBudget is the wall-clock evaluation budget when none is supplied.
const DefaultBudget = time.Second

// Evaluate evaluates cond against ctx under budget, never mutating ctx.
func Evaluate(cond Condition, ctx EvaluationContext, budget time.Duration) Result {
	if budget <= 0 {
		budget = DefaultBudget
	}
	deadline := time.Now().Add(budget)
	return evaluate(cond, ctx, deadline)
}

func evaluate(cond Condition, ctx EvaluationContext, deadline time.Time) Result {
	if time.Now().After(deadline) {
		return fail(errs.New(errs.KindTimeout, "condition.Evaluate", fmt.Errorf("evaluation budget exceeded")))
	}

	switch cond.Kind {
	case KindAlways:
		return ok(true)

	case KindNever:
		return ok(false)

	case KindSharedDataExists:
		_, found := ctx.SharedData[cond.Key]
		return ok(found)

	case KindStepResultEquals:
		output, found := ctx.StepOutputs[cond.Key]
		if !found {
			return ok(false)
		}
		return ok(reflect.DeepEqual(output, cond.Value))

	case KindAnd:
		for _, child := range cond.Children {
			r := evaluate(child, ctx, deadline)
			if r.Err != nil {
				return r
			}
			if !r.Value {
				return ok(false)
			}
		}
		return ok(true)

	case KindOr:
		var lastErr error
		for _, child := range cond.Children {
			r := evaluate(child, ctx, deadline)
			if r.Err != nil {
				lastErr = r.Err
				continue
			}
			if r.Value {
				return ok(true)
			}
		}
		if lastErr != nil {
			return fail(lastErr)
		}
		return ok(false)

	case KindNot:
		if len(cond.Children) != 1 {
			return fail(errs.New(errs.KindValidation, "condition.Evaluate", fmt.Errorf("not requires exactly one child")))
		}
		r := evaluate(cond.Children[0], ctx, deadline)
		if r.Err != nil {
			return r
		}
		return ok(!r.Value)

	case KindCustom:
		return evalCustom(cond.Expression, ctx)

	default:
		return fail(errs.New(errs.KindValidation, "condition.Evaluate", fmt.Errorf("unknown condition kind %q", cond.Kind)))
	}
}

// evalCustom recognizes the two micro-expression forms of spec §4.7:
//
//	shared_data.<key> == <literal>
//	step_result.<id>.(success|failed)
func evalCustom(expr string, ctx EvaluationContext) Result {
	expr = strings.TrimSpace(expr)

	if strings.HasPrefix(expr, "shared_data.") {
		rest := strings.TrimPrefix(expr, "shared_data.")
		parts := strings.SplitN(rest, "==", 2)
		if len(parts) != 2 {
			return fail(errs.New(errs.KindValidation, "condition.evalCustom", fmt.Errorf("malformed expression %q", expr)))
		}
		key := strings.TrimSpace(parts[0])
		literal := strings.TrimSpace(parts[1])
		literal = strings.Trim(literal, `"'`)

		val, found := ctx.SharedData[key]
		if !found {
			return ok(false)
		}
		return ok(stringify(val) == literal)
	}

	if strings.HasPrefix(expr, "step_result.") {
		rest := strings.TrimPrefix(expr, "step_result.")
		idx := strings.LastIndex(rest, ".")
		if idx < 0 {
			return fail(errs.New(errs.KindValidation, "condition.evalCustom", fmt.Errorf("malformed expression %q", expr)))
		}
		stepID := rest[:idx]
		predicate := rest[idx+1:]

		result, found := ctx.StepResults[stepID]
		if !found {
			return ok(false)
		}
		switch predicate {
		case "success":
			return ok(result.Success)
		case "failed":
			return ok(result.Failed)
		default:
			return fail(errs.New(errs.KindValidation, "condition.evalCustom", fmt.Errorf("unknown predicate %q", predicate)))
		}
	}

	return fail(errs.New(errs.KindValidation, "condition.evalCustom", fmt.Errorf("unrecognized expression %q", expr)))
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Always builds a condition that matches unconditionally.
func Always() Condition { return Condition{Kind: KindAlways} }

// Never builds a condition that never matches.
func Never() Condition { return Condition{Kind: KindNever} }

// And builds an And condition.
func And(children ...Condition) Condition { return Condition{Kind: KindAnd, Children: children} }

// Or builds an Or condition.
func Or(children ...Condition) Condition { return Condition{Kind: KindOr, Children: children} }

// Not builds a Not condition.
func Not(child Condition) Condition { return Condition{Kind: KindNot, Children: []Condition{child}} }

// Custom builds a Custom condition from a micro-expression.
func Custom(expr string) Condition { return Condition{Kind: KindCustom, Expression: expr} }

// SharedDataEquals is a convenience constructor for the common
// "shared_data.<key> == <literal>" custom expression.
func SharedDataEquals(key, literal string) Condition {
	return Custom(fmt.Sprintf("shared_data.%s == %s", key, literal))
}

// StepSucceeded is a convenience constructor for "step_result.<id>.success".
func StepSucceeded(stepID string) Condition {
	return Custom(fmt.Sprintf("step_result.%s.success", stepID))
}

// StepFailed is a convenience constructor for "step_result.<id>.failed".
func StepFailed(stepID string) Condition {
	return Custom(fmt.Sprintf("step_result.%s.failed", stepID))
}

// SharedDataExists builds a condition that matches when key is present
// in shared data, regardless of its value.
func SharedDataExists(key string) Condition {
	return Condition{Kind: KindSharedDataExists, Key: key}
}

// StepResultEquals builds a condition that matches when stepID's
// recorded output equals value.
func StepResultEquals(stepID string, value any) Condition {
	return Condition{Kind: KindStepResultEquals, Key: stepID, Value: value}
}
