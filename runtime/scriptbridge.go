package runtime

import "context"

// Engine names a scripting language a ScriptBridge may execute a script
// under.
type Engine string

const (
	EngineLua        Engine = "lua"
	EngineJavaScript Engine = "javascript"
	EnginePython     Engine = "python"
)

// ScriptBridge is the external collaborator that executes a workflow
// script against this Runtime, per spec §6: it lives outside core and is
// reached only through this interface. No concrete implementation ships
// in core, the same way provider.Client's only concrete implementation
// is the gRPC adapter rather than an in-process LLM SDK.
type ScriptBridge interface {
	// Execute runs source under the named engine with input bound into
	// the script's top-level scope, returning the script's result value
	// or an error describing where the script failed.
	Execute(ctx context.Context, engine Engine, source string, input map[string]any) (map[string]any, error)
}
