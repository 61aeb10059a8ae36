package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tarsy-substrate/substrate/cmd/tarsy-substrate/internal/output"
)

// newRunCmd builds the "run <script>" command: it reads a script file
// from disk and dispatches it to the runtime's ScriptBridge under the
// requested engine.
func newRunCmd(configPath, engine, outputMode *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a workflow script file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				format, ferr := parseFormat(*outputMode)
				if ferr != nil {
					return ferr
				}
				return emit(format, output.Failure(err))
			}
			return runScript(cmd, *configPath, *engine, *outputMode, string(source))
		},
	}
	return cmd
}

// newExecCmd builds the "exec <inline>" command: it dispatches the
// literal argument text as a script, for quick one-off invocations.
func newExecCmd(configPath, engine, outputMode *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <inline>",
		Short: "Run an inline workflow script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, *configPath, *engine, *outputMode, args[0])
		},
	}
	return cmd
}

func runScript(cmd *cobra.Command, configPath, engineFlag, outputFlag, source string) error {
	format, err := parseFormat(outputFlag)
	if err != nil {
		return err
	}
	engine, err := parseEngine(engineFlag)
	if err != nil {
		return emit(format, output.Failure(err))
	}

	rt, err := buildRuntime(cmd.Context(), configPath)
	if err != nil {
		return emit(format, output.Failure(err))
	}
	defer func() { _ = rt.Close() }()

	result, err := rt.RunScript(cmd.Context(), engine, source, nil)
	if err != nil {
		return emit(format, output.Failure(err))
	}
	return emit(format, output.Success("script completed", result))
}
