package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/vigil/internal/printer"
	"github.com/dyluth/vigil/internal/watch"
	"github.com/dyluth/vigil/pkg/ledger"
	"github.com/spf13/cobra"
)

var watchOutputFormat string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream ticks as the hub commits them",
	Long: `Stream every tick the hub commits, as it happens.

Requires the redis store driver. Delivery is best-effort: ticks committed
while the CLI is disconnected are not replayed (use 'vigil history').

Output Formats:
  default - One human-readable line per tick
  json    - Line-delimited JSON for programmatic processing

Examples:
  vigil watch
  vigil watch --output=json > ticks.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	redisStore, ok := store.(*ledger.RedisStore)
	if !ok {
		return printer.Error(
			"live stream unavailable",
			fmt.Sprintf("The %s store does not publish tick events.", cfg.Store.Driver),
			[]string{"Use 'vigil history' to read recorded ticks"},
		)
	}

	sub, err := redisStore.SubscribeTickEvents(ctx)
	if err != nil {
		return printer.Error("subscription failed", err.Error(), nil)
	}
	defer sub.Close()

	if outputFormat == watch.OutputFormatDefault {
		printer.Info("Watching ticks for instance '%s' (Ctrl+C to stop)\n", cfg.Instance)
	}
	return watch.StreamTicks(ctx, sub, outputFormat, os.Stdout)
}
