package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tarsy-substrate/substrate/errs"
	"github.com/tarsy-substrate/substrate/tool"
)

// DataFlowKind identifies how a Tool Composition step input is resolved
// (spec §4.6.6).
type DataFlowKind string

const (
	FlowParameter     DataFlowKind = "parameter"
	FlowStepOutput    DataFlowKind = "step_output"
	FlowConstant      DataFlowKind = "constant"
	FlowSharedContext DataFlowKind = "shared_context"
	FlowTransform     DataFlowKind = "transform"
)

// TransformKind is one of the transforms a Transform data-flow applies.
type TransformKind string

const (
	TransformExtractField TransformKind = "extract_field"
	TransformJSONPath     TransformKind = "json_path"
	TransformToString     TransformKind = "to_string"
	TransformToNumber     TransformKind = "to_number"
	TransformCustom       TransformKind = "custom"
)

// DataFlow describes how to produce one resolved value for a tool call
// input (spec §4.6.6).
type DataFlow struct {
	Kind DataFlowKind

	Parameter string // FlowParameter

	StepID string // FlowStepOutput
	Field  string // FlowStepOutput; "*" yields the entire output

	Constant any // FlowConstant

	ContextKey string // FlowSharedContext

	Source    *DataFlow     // FlowTransform
	Transform TransformKind // FlowTransform
	// CustomTransform implements TransformCustom; registered by the
	// caller building the composition, since "Custom(name)" in the
	// abstract spec corresponds to a caller-supplied function here.
	CustomTransform func(any) (any, error)
}

// ResolveDataFlow resolves a DataFlow against a step's input context.
func ResolveDataFlow(df DataFlow, state *SharedState, sharedContext map[string]any) (any, error) {
	switch df.Kind {
	case FlowParameter:
		v, ok := state.Input()[df.Parameter]
		if !ok {
			return nil, errs.NewWithKey(errs.KindNotFound, "workflow.ResolveDataFlow", df.Parameter, fmt.Errorf("parameter not found"))
		}
		return v, nil

	case FlowStepOutput:
		out, ok := state.StepOutput(df.StepID)
		if !ok {
			return nil, errs.NewWithKey(errs.KindNotFound, "workflow.ResolveDataFlow", df.StepID, fmt.Errorf("step output not found"))
		}
		if df.Field == "*" || df.Field == "" {
			return out, nil
		}
		m, ok := out.(map[string]any)
		if !ok {
			return nil, errs.NewWithKey(errs.KindValidation, "workflow.ResolveDataFlow", df.StepID, fmt.Errorf("step output is not a map, cannot extract field %q", df.Field))
		}
		v, ok := m[df.Field]
		if !ok {
			return nil, errs.NewWithKey(errs.KindNotFound, "workflow.ResolveDataFlow", df.StepID+"."+df.Field, fmt.Errorf("field not found in step output"))
		}
		return v, nil

	case FlowConstant:
		return df.Constant, nil

	case FlowSharedContext:
		v, ok := sharedContext[df.ContextKey]
		if !ok {
			return nil, errs.NewWithKey(errs.KindNotFound, "workflow.ResolveDataFlow", df.ContextKey, fmt.Errorf("shared context key not found"))
		}
		return v, nil

	case FlowTransform:
		if df.Source == nil {
			return nil, errs.New(errs.KindValidation, "workflow.ResolveDataFlow", fmt.Errorf("transform data-flow has no source"))
		}
		v, err := ResolveDataFlow(*df.Source, state, sharedContext)
		if err != nil {
			return nil, err
		}
		return applyTransform(df, v)

	default:
		return nil, errs.New(errs.KindValidation, "workflow.ResolveDataFlow", fmt.Errorf("unknown data-flow kind %q", df.Kind))
	}
}

func applyTransform(df DataFlow, v any) (any, error) {
	switch df.Transform {
	case TransformExtractField:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, errs.New(errs.KindValidation, "workflow.applyTransform", fmt.Errorf("extract_field requires a map, got %T", v))
		}
		return m[df.Field], nil

	case TransformJSONPath:
		return resolveJSONPath(v, df.Field)

	case TransformToString:
		return fmt.Sprintf("%v", v), nil

	case TransformToNumber:
		switch t := v.(type) {
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case string:
			f, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, errs.New(errs.KindValidation, "workflow.applyTransform", fmt.Errorf("to_number: %w", err))
			}
			return f, nil
		default:
			return nil, errs.New(errs.KindValidation, "workflow.applyTransform", fmt.Errorf("to_number: unsupported type %T", v))
		}

	case TransformCustom:
		if df.CustomTransform == nil {
			return nil, errs.New(errs.KindValidation, "workflow.applyTransform", fmt.Errorf("custom transform has no implementation registered"))
		}
		return df.CustomTransform(v)

	default:
		return nil, errs.New(errs.KindValidation, "workflow.applyTransform", fmt.Errorf("unknown transform %q", df.Transform))
	}
}

// resolveJSONPath supports the restricted dotted-path subset used by
// Tool Composition ("a.b.c"), not a full JSONPath grammar.
func resolveJSONPath(v any, path string) (any, error) {
	cur := v
	for _, segment := range strings.Split(strings.TrimPrefix(path, "$."), ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, errs.New(errs.KindValidation, "workflow.resolveJSONPath", fmt.Errorf("path segment %q: not a map", segment))
		}
		cur, ok = m[segment]
		if !ok {
			return nil, errs.New(errs.KindNotFound, "workflow.resolveJSONPath", fmt.Errorf("path segment %q not found", segment))
		}
	}
	return cur, nil
}

// ConditionOp is an execution-condition comparator (spec §4.6.6).
type ConditionOp string

const (
	OpEquals      ConditionOp = "equals"
	OpNotEquals   ConditionOp = "not_equals"
	OpExists      ConditionOp = "exists"
	OpNotExists   ConditionOp = "not_exists"
	OpMatches     ConditionOp = "matches"
	OpGreaterThan ConditionOp = "greater_than"
	OpLessThan    ConditionOp = "less_than"
)

// ExecutionCondition gates whether a Tool Composition step runs.
type ExecutionCondition struct {
	Field string
	Op    ConditionOp
	Value any
}

// evaluateExecutionCondition evaluates an ExecutionCondition against a
// flat field source (typically the workflow's shared data).
func evaluateExecutionCondition(ec ExecutionCondition, source map[string]any) (bool, error) {
	v, found := source[ec.Field]
	switch ec.Op {
	case OpExists:
		return found, nil
	case OpNotExists:
		return !found, nil
	}
	if !found {
		return false, nil
	}

	switch ec.Op {
	case OpEquals:
		return fmt.Sprintf("%v", v) == fmt.Sprintf("%v", ec.Value), nil
	case OpNotEquals:
		return fmt.Sprintf("%v", v) != fmt.Sprintf("%v", ec.Value), nil
	case OpMatches:
		s, ok1 := v.(string)
		sub, ok2 := ec.Value.(string)
		if !ok1 || !ok2 {
			return false, nil
		}
		return strings.Contains(s, sub), nil
	case OpGreaterThan, OpLessThan:
		lhs, ok1 := asFloat(v)
		rhs, ok2 := asFloat(ec.Value)
		if !ok1 || !ok2 {
			return false, nil
		}
		if ec.Op == OpGreaterThan {
			return lhs > rhs, nil
		}
		return lhs < rhs, nil
	default:
		return false, errs.New(errs.KindValidation, "workflow.evaluateExecutionCondition", fmt.Errorf("unknown op %q", ec.Op))
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// NewToolStep builds a Step that resolves inputs via dataFlows, gates on
// an optional execution condition, and dispatches t (spec §4.6.6: "A
// specialization of workflows where each step is a tool invocation").
func NewToolStep(id string, t tool.Tool, dataFlows map[string]DataFlow, gate *ExecutionCondition, sharedContext map[string]any) Step {
	return Step{
		ID: id,
		Run: func(ctx context.Context, state *SharedState) (map[string]any, error) {
			if gate != nil {
				ok, err := evaluateExecutionCondition(*gate, state.Snapshot())
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, ErrConditionNotMet
				}
			}

			params := make(map[string]any, len(dataFlows))
			for name, df := range dataFlows {
				v, err := ResolveDataFlow(df, state, sharedContext)
				if err != nil {
					return nil, err
				}
				params[name] = v
			}

			return tool.Dispatch(ctx, t, params)
		},
	}
}
