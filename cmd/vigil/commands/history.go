package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/vigil/internal/history"
	"github.com/dyluth/vigil/internal/printer"
	"github.com/dyluth/vigil/internal/resolver"
	"github.com/dyluth/vigil/internal/timespec"
	"github.com/dyluth/vigil/pkg/protocol"
	"github.com/spf13/cobra"
)

var (
	historyOutputFormat string
	historyLimit        int
	historySince        string
	historyUntil        string
	historyStatus       string
	historyValidator    string
)

var historyCmd = &cobra.Command{
	Use:   "history TARGET_ID",
	Short: "Show recorded ticks for a target",
	Long: `Show the most recent ticks recorded for a target, oldest first.

TARGET_ID may be a full id or a unique prefix of at least 6 characters.

Output Formats:
  default - Table with validator, status, latency and age
  jsonl   - Line-delimited JSON, one tick per line

Examples:
  # Last 50 ticks
  vigil history 0190c3a2

  # Failures in the last hour
  vigil history 0190c3a2 --status=down --since=1h

  # Pipe to jq
  vigil history 0190c3a2 --output=jsonl | jq .latency_ms`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyOutputFormat, "output", "o", "default", "Output format (default or jsonl)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum ticks to read (0 for all)")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only ticks after this time (duration like 1h or RFC3339)")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "Only ticks before this time (duration like 1h or RFC3339)")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Only ticks with this status (up or down)")
	historyCmd.Flags().StringVar(&historyValidator, "validator", "", "Only ticks from this validator id")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	format := history.OutputFormat(historyOutputFormat)
	if format != history.OutputFormatDefault && format != history.OutputFormatJSONL {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", historyOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	sinceMs, untilMs, err := timespec.ParseRange(historySince, historyUntil, time.Now())
	if err != nil {
		return printer.Error("invalid time range", err.Error(), nil)
	}

	filters := &history.Criteria{
		SinceTimestampMs: sinceMs,
		UntilTimestampMs: untilMs,
		Status:           protocol.Status(historyStatus),
		ValidatorID:      historyValidator,
	}
	if filters.Status != "" {
		if err := filters.Status.Validate(); err != nil {
			return printer.Error("invalid status filter", err.Error(), nil)
		}
	}

	store, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	target, err := resolver.ResolveTarget(ctx, store, args[0])
	if err != nil {
		if amb, ok := err.(*resolver.AmbiguousError); ok {
			return printer.Error("ambiguous target id", resolver.FormatAmbiguousError(amb), nil)
		}
		if resolver.IsNotFoundError(err) {
			return printer.Error("target not found", err.Error(), []string{"List targets:\n  vigil targets"})
		}
		return printer.Error("failed to resolve target", err.Error(), nil)
	}

	return history.ListTicks(ctx, store, target, historyLimit, format, filters, os.Stdout)
}
