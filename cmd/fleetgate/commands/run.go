package commands

import (
	"os"

	"github.com/spf13/cobra"
)

func newRunCommand(version string) *cobra.Command {
	var (
		target     string
		params     []string
		check      bool
		failFast   bool
		parallel   int
		strict     bool
		runnerPath string
	)

	cmd := &cobra.Command{
		Use:   "run <action>",
		Short: "Run an action against target hosts",
		Long: `Execute one action against every host a target expression resolves to.

Target expressions accept host names, group names, and glob patterns,
joined with "," and excluded with "!":

  web1                 one host
  web                  every host in group web
  web*                 every host matching the pattern
  web,db               union of two terms
  web,!web3            group web except web3`,
		Example: `  # Check uptime everywhere
  fleetgate run command -t '*' -p cmd=uptime

  # Deploy a file to the web group, except the canary
  fleetgate run copy -t 'web,!web1' -p src=./app.conf -p dest=/etc/app.conf

  # Preview without changing anything
  fleetgate run file -t db --check -p path=/tmp/scratch -p state=absent`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx, version, runnerPath)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			actionParams, err := parseParams(params)
			if err != nil {
				return err
			}

			opts := app.options()
			opts.Check = check
			opts.StrictTargets = strict
			if cmd.Flags().Changed("fail-fast") {
				opts.FailFast = failFast
			}
			if cmd.Flags().Changed("parallel") {
				opts.Parallel = parallel
			}

			report, err := app.dispatcher.Execute(ctx, args[0], target, actionParams, opts)
			if err != nil {
				return err
			}
			if err := printReport(os.Stdout, report); err != nil {
				return err
			}
			if report.Failed {
				os.Exit(2)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "localhost", "target expression (hosts, groups, globs)")
	cmd.Flags().StringSliceVarP(&params, "param", "p", nil, "action parameters (key=value)")
	cmd.Flags().BoolVar(&check, "check", false, "report what would change without changing it")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "cancel remaining hosts on the first failure")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "maximum concurrent hosts")
	cmd.Flags().BoolVar(&strict, "strict-targets", false, "fail when a target term matches nothing")
	cmd.Flags().StringVar(&runnerPath, "runner", "", "gate-runner binary for remote bundles")

	return cmd
}
