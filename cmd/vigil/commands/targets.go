package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/vigil/internal/printer"
	"github.com/dyluth/vigil/pkg/ledger"
	"github.com/spf13/cobra"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the targets the hub dispatches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, cfg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		targets, err := store.ListActiveTargets(ctx)
		if err != nil {
			return printer.Error("failed to list targets", err.Error(), nil)
		}

		printTargets(cmd.OutOrStdout(), targets, cfg.Instance)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}

func printTargets(w io.Writer, targets []*ledger.Target, instance string) {
	if len(targets) == 0 {
		fmt.Fprintf(w, "No active targets for instance '%s'\n", instance)
		return
	}

	rows := make([][]string, 0, len(targets))
	for _, t := range targets {
		created := "-"
		if t.CreatedAtMs > 0 {
			created = time.UnixMilli(t.CreatedAtMs).UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{t.ID, t.URL, created})
	}
	printer.Table(w, []string{"ID", "URL", "Created"}, rows)
}
