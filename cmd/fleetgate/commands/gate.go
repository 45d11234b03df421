package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetgate/fleetgate/pkg/actions"
	"github.com/fleetgate/fleetgate/pkg/actions/builtin"
	"github.com/fleetgate/fleetgate/pkg/gate"
)

func newGateCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Work with gate bundles",
	}

	var runnerPath string

	build := &cobra.Command{
		Use:   "build",
		Short: "Build the gate bundle and print its content hash",
		Long: `Assemble the bundle that would be uploaded to remote hosts.

The hash is deterministic over the runtime version and the included
actions, so an unchanged tree always reports the same hash. Hosts that
already hold a bundle with this hash skip the upload.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}

			registry := actions.NewRegistry()
			if err := builtin.RegisterAll(registry); err != nil {
				return err
			}

			if runnerPath == "" {
				runnerPath = defaultRunnerPath()
			}
			builder := gate.NewBuilder(registry, gate.NewBinaryRuntime(runnerPath, version), cfg.CacheDir, nil, log)

			bundle, err := builder.Build(cmd.Context(), registry.IDs())
			if err != nil {
				return err
			}

			fmt.Printf("hash:    %s\n", bundle.Hash)
			fmt.Printf("size:    %d bytes\n", len(bundle.Data))
			fmt.Printf("actions: %d\n", len(bundle.ActionIDs))
			fmt.Printf("remote:  ~/%s\n", gate.RemotePath(bundle.Hash))
			return nil
		},
	}
	build.Flags().StringVar(&runnerPath, "runner", "", "gate-runner binary to embed")

	hash := &cobra.Command{
		Use:   "hash",
		Short: "Print the bundle content hash without building",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}

			registry := actions.NewRegistry()
			if err := builtin.RegisterAll(registry); err != nil {
				return err
			}

			if runnerPath == "" {
				runnerPath = defaultRunnerPath()
			}
			builder := gate.NewBuilder(registry, gate.NewBinaryRuntime(runnerPath, version), cfg.CacheDir, nil, log)

			h, err := builder.Hash(registry.IDs())
			if err != nil {
				return err
			}
			fmt.Println(h)
			return nil
		},
	}
	hash.Flags().StringVar(&runnerPath, "runner", "", "gate-runner binary to embed")

	cmd.AddCommand(build)
	cmd.AddCommand(hash)

	return cmd
}
