// Package tool defines the Tool interface of spec §6: tools self-describe
// via a Spec and are validated against that description's parameter schema
// before dispatch. Grounded in the teacher's outward-tool-call boundary
// generalized from a single hardcoded tool set to an open interface, and
// in goadesign-goa-ai's registry/service.go for the jsonschema/v6
// compile-then-validate sequence used here.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tarsy-substrate/substrate/errs"
)

// SecurityLevel gates which sandbox a tool call runs in.
type SecurityLevel string

const (
	SecuritySafe       SecurityLevel = "safe"
	SecurityRestricted SecurityLevel = "restricted"
	SecurityPrivileged SecurityLevel = "privileged"
)

// Parameter describes one entry of a tool's schema.parameters (spec §6).
type Parameter struct {
	Name        string
	Type        string // json-schema primitive: "string", "number", "boolean", "object", "array"
	Required    bool
	Default     any
	Description string
}

// Returns describes the shape of a tool's output, informational only.
type Returns struct {
	Type        string
	Description string
}

// Schema is a tool's self-described parameter contract.
type Schema struct {
	Parameters []Parameter
	Returns    Returns
}

// Spec is what a Tool reports about itself (spec §6).
type Spec struct {
	Name          string
	Description   string
	Category      string
	SecurityLevel SecurityLevel
	Schema        Schema
}

// Tool is the pipeline's unit of outward tool dispatch.
type Tool interface {
	Describe() Spec
	Execute(ctx context.Context, params map[string]any) (map[string]any, error)
}

// toJSONSchema renders a Schema as a JSON Schema "object" document: each
// Parameter becomes a property, required ones listed in "required".
func toJSONSchema(s Schema) map[string]any {
	properties := make(map[string]any, len(s.Parameters))
	var required []string
	for _, p := range s.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

// compiledSchema compiles a tool's Schema into a jsonschema/v6 validator
// under a resource name derived from the tool's name. It compiles afresh
// on every call; nothing is cached.
func compiledSchema(toolName string, s Schema) (*jsonschema.Schema, error) {
	doc := toJSONSchema(s)
	c := jsonschema.NewCompiler()
	resourceName := fmt.Sprintf("tool://%s/schema.json", toolName)
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, errs.New(errs.KindValidation, "tool.compiledSchema", fmt.Errorf("add schema resource: %w", err))
	}
	schema, err := c.Compile(resourceName)
	if err != nil {
		return nil, errs.New(errs.KindValidation, "tool.compiledSchema", fmt.Errorf("compile schema: %w", err))
	}
	return schema, nil
}

// ValidateParams validates params against t's self-described schema before
// dispatch (spec §6's "tools self-describe ... execute_tool" contract).
func ValidateParams(t Tool, params map[string]any) error {
	spec := t.Describe()
	schema, err := compiledSchema(spec.Name, spec.Schema)
	if err != nil {
		return err
	}

	// jsonschema/v6 validates Go values produced by json.Unmarshal (plain
	// map[string]any / float64 / etc.), so round-trip through JSON to
	// normalize caller-supplied values (e.g. int -> float64).
	raw, err := json.Marshal(params)
	if err != nil {
		return errs.New(errs.KindSerialization, "tool.ValidateParams", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errs.New(errs.KindSerialization, "tool.ValidateParams", err)
	}

	if err := schema.Validate(doc); err != nil {
		return errs.NewWithKey(errs.KindValidation, "tool.ValidateParams", spec.Name, err)
	}
	return nil
}

// Dispatch validates params against t's schema, then executes it.
func Dispatch(ctx context.Context, t Tool, params map[string]any) (map[string]any, error) {
	if err := ValidateParams(t, params); err != nil {
		return nil, err
	}
	return t.Execute(ctx, params)
}
