// Package commands builds the tarsy-substrate cobra command tree: run,
// exec and config validate, over a *runtime.Runtime constructed from
// --config, the way dotcommander-vybe's internal/commands.Execute wires
// its own subcommands onto one root command.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tarsy-substrate/substrate/cmd/tarsy-substrate/internal/output"
	"github.com/tarsy-substrate/substrate/config"
	"github.com/tarsy-substrate/substrate/runtime"
)

// Execute builds and runs the root command, returning the error that
// should drive the process exit code.
func Execute(version string) error {
	var (
		configPath string
		engine     string
		outputMode string
	)

	root := &cobra.Command{
		Use:           "tarsy-substrate",
		Short:         "Run and inspect agent-orchestration workflows",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file (defaults built in if omitted)")
	root.PersistentFlags().StringVar(&engine, "engine", string(runtime.EngineLua), "script engine: lua|javascript|python")
	root.PersistentFlags().StringVar(&outputMode, "output", string(output.Text), "output format: text|json")

	root.AddCommand(newRunCmd(&configPath, &engine, &outputMode))
	root.AddCommand(newExecCmd(&configPath, &engine, &outputMode))
	root.AddCommand(newConfigCmd(&configPath, &outputMode))

	return root.Execute()
}

// buildRuntime loads configuration from configPath and constructs a
// *runtime.Runtime, the shared setup path for run and exec.
func buildRuntime(ctx context.Context, configPath string) (*runtime.Runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	slog.Debug("configuration loaded", "stats", cfg.Stats())
	return runtime.New(ctx, cfg)
}

// parseEngine validates the --engine flag against the three supported
// script engines.
func parseEngine(raw string) (runtime.Engine, error) {
	switch runtime.Engine(raw) {
	case runtime.EngineLua, runtime.EngineJavaScript, runtime.EnginePython:
		return runtime.Engine(raw), nil
	default:
		return "", fmt.Errorf("unknown engine %q: must be lua, javascript or python", raw)
	}
}

// parseFormat validates the --output flag.
func parseFormat(raw string) (output.Format, error) {
	switch output.Format(raw) {
	case output.Text, output.JSON:
		return output.Format(raw), nil
	default:
		return "", fmt.Errorf("unknown output format %q: must be text or json", raw)
	}
}

// emit renders result in format to stdout (success) or stderr (failure),
// per spec §7's "CLI commands exit non-zero with a single-line summary
// and a machine-readable JSON error when --output json is set."
func emit(format output.Format, result output.Result) error {
	w := os.Stdout
	if !result.Success {
		w = os.Stderr
	}
	if err := output.Write(w, format, result); err != nil {
		return err
	}
	if !result.Success {
		return errors.New(result.Summary)
	}
	return nil
}
