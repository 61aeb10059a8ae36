// Command tarsy-substrate is the CLI surface over the agent-orchestration
// runtime (spec §6): run, exec and config validate, the way the
// teacher's cmd/tarsy is the process entrypoint over pkg/database and
// pkg/agent, rebuilt here on cobra the way dotcommander-vybe's cmd/vybe
// delegates straight to an internal commands package.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/joho/godotenv"

	"github.com/tarsy-substrate/substrate/cmd/tarsy-substrate/internal/commands"
)

var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	if err := commands.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
