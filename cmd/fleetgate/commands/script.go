package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetgate/fleetgate/pkg/script"
	"github.com/fleetgate/fleetgate/pkg/store"
)

func newScriptCommand(version string) *cobra.Command {
	var (
		check      bool
		runnerPath string
	)

	cmd := &cobra.Command{
		Use:   "script <file.star>",
		Short: "Run a Starlark orchestration script",
		Long: `Execute a Starlark script with access to the execution engine.

Scripts drive the same dispatcher the run command uses, plus the
inventory and the state store:

  run(action, target, params=None, check=False)
  add_host(name, address=None, user=None, port=None, groups=None, local=False)
  state_has(name) / state_get(name) / state_add(name, attrs) / state_remove(name)

Top-level data globals are printed as the script's result.`,
		Example: `  fleetgate script rollout.star
  fleetgate script health.star --check`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx, version, runnerPath)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			st, err := store.Open(app.cfg.StatePath, app.log)
			if err != nil {
				return err
			}

			opts := app.options()
			opts.Check = check

			runner := script.NewRunner(app.dispatcher, app.inventory, st, opts, app.log)
			globals, err := runner.RunFile(ctx, args[0])
			if err != nil {
				return err
			}

			if len(globals) == 0 {
				return nil
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(globals)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "run every action in check mode")
	cmd.Flags().StringVar(&runnerPath, "runner", "", "gate-runner binary for remote bundles")

	return cmd
}
