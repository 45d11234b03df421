package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetgate/fleetgate/pkg/store"
)

func newStateCommand() *cobra.Command {
	var hosts bool

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and edit the local state store",
	}
	cmd.PersistentFlags().BoolVar(&hosts, "hosts", false, "address the hosts namespace instead of resources")

	openState := func() (*store.Store, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return nil, err
		}
		return store.Open(cfg.StatePath, log)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List tracked names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openState()
			if err != nil {
				return err
			}
			names := st.ResourceNames()
			if hosts {
				names = st.HostNames()
			}
			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(names)
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Show one entry's attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openState()
			if err != nil {
				return err
			}
			get := st.Get
			if hosts {
				get = st.GetHost
			}
			attrs, err := get(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(attrs)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <name>",
		Short: "Remove one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openState()
			if err != nil {
				return err
			}
			remove := st.Remove
			if hosts {
				remove = st.RemoveHost
			}
			return remove(args[0])
		},
	})

	return cmd
}
