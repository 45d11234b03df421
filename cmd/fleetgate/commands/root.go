package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fleetgate",
		Short: "Fleetgate - distributed automation action execution",
		Long: `Fleetgate runs automation actions against fleets of hosts over SSH.

Each remote host receives a content-addressed gate bundle: a
self-contained runtime plus the actions it may be asked to execute.
Bundles are cached by hash on both sides, so repeat runs skip the
upload entirely.

Features:
  - Built-in actions (ping, command, file, copy, service, pkg, uri)
  - Target expressions with groups, globs, unions, and exclusions
  - Secret injection with audit-log redaction
  - Starlark scripting over the same execution engine
  - Command safety screening with a destructive-operation policy`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newRunCommand(version))
	rootCmd.AddCommand(newScriptCommand(version))
	rootCmd.AddCommand(newStateCommand())
	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newGateCommand(version))

	return rootCmd
}
