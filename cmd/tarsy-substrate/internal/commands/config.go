package commands

import (
	"github.com/spf13/cobra"

	"github.com/tarsy-substrate/substrate/cmd/tarsy-substrate/internal/output"
	"github.com/tarsy-substrate/substrate/config"
)

// newConfigCmd builds the "config" command group, currently just
// "config validate", the teacher's config.Validator promoted to a
// first-class CLI operation rather than only a load-time side effect.
func newConfigCmd(rootConfigPath, outputMode *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(newConfigValidateCmd(rootConfigPath, outputMode))
	return cmd
}

func newConfigValidateCmd(rootConfigPath, outputMode *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate [--file path]",
		Short: "Validate a configuration file (or the built-in defaults)",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(*outputMode)
			if err != nil {
				return err
			}

			path := file
			if path == "" {
				path = *rootConfigPath
			}

			cfg, err := config.Load(path)
			if err != nil {
				return emit(format, output.Failure(err))
			}
			return emit(format, output.Success("configuration is valid", cfg.Stats()))
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a YAML configuration file (defaults to --config, or built-in defaults)")
	return cmd
}
