package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded action invocations",
		Long: `Show the audit trail, newest first.

Every dispatched action invocation is recorded with its parameters;
values injected from secret bindings appear redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}

			recorder, err := openRecorder(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer recorder.Close()

			entries, err := recorder.List(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			for _, e := range entries {
				status := "ok"
				if !e.Success {
					status = fmt.Sprintf("FAILED %s: %s", e.ErrKind, e.ErrMsg)
				}
				mode := ""
				if e.Check {
					mode = " (check)"
				}
				fmt.Printf("%s  %s  %s on %s%s  %s\n",
					e.EndedAt.Format(time.RFC3339), e.RunID, e.ActionID, e.Host, mode, status)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum entries to show (0 for all)")

	return cmd
}
