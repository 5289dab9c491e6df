package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dyluth/vigil/internal/printer"
	"github.com/dyluth/vigil/pkg/ledger"
	"github.com/spf13/cobra"
)

var validatorsCmd = &cobra.Command{
	Use:   "validators",
	Short: "List validator identities and pending payouts",
	Long: `List every validator identity recorded in the ledger, oldest first,
with its advertised location and the payout balance it has accrued.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, cfg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		validators, err := store.ListValidators(ctx)
		if err != nil {
			return printer.Error("failed to list validators", err.Error(), nil)
		}

		printValidators(cmd.OutOrStdout(), validators, cfg.Instance)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validatorsCmd)
}

func printValidators(w io.Writer, validators []*ledger.Validator, instance string) {
	if len(validators) == 0 {
		fmt.Fprintf(w, "No validators found for instance '%s'\n", instance)
		return
	}

	rows := make([][]string, 0, len(validators))
	var total int64
	for _, v := range validators {
		total += v.PendingPayouts
		rows = append(rows, []string{
			v.ID,
			v.PublicKey,
			orDash(v.IP),
			orDash(v.Location),
			strconv.FormatInt(v.PendingPayouts, 10),
			time.UnixMilli(v.CreatedAtMs).UTC().Format(time.RFC3339),
		})
	}

	printer.Table(w, []string{"ID", "Public Key", "IP", "Location", "Pending", "Created"}, rows)
	fmt.Fprintf(w, "\n%d validators, %d pending in total\n", len(validators), total)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
