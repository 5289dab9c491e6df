package history

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/vigil/pkg/ledger"
)

// OutputFormat specifies how to format the tick list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete ticks as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// TickReader is the subset of the ledger needed to read tick history.
type TickReader interface {
	ListTicks(ctx context.Context, targetID string, limit int) ([]*ledger.Tick, error)
}

// ListTicks reads up to limit of the target's most recent ticks, applies
// filters, and writes them oldest first.
func ListTicks(ctx context.Context, store TickReader, target *ledger.Target, limit int, format OutputFormat, filters *Criteria, w io.Writer) error {
	ticks, err := store.ListTicks(ctx, target.ID, limit)
	if err != nil {
		return fmt.Errorf("failed to list ticks: %w", err)
	}

	selected := make([]*ledger.Tick, 0, len(ticks))
	// newest first from the store; flip for chronological output
	for i := len(ticks) - 1; i >= 0; i-- {
		if filters != nil && !filters.Matches(ticks[i]) {
			continue
		}
		selected = append(selected, ticks[i])
	}

	switch format {
	case OutputFormatDefault:
		FormatTable(w, selected, target)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, selected); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
