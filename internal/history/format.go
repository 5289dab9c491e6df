package history

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/vigil/pkg/ledger"
	"github.com/dyluth/vigil/pkg/protocol"
)

// FormatTable writes ticks as a table with columns TICK, VALIDATOR,
// STATUS, LATENCY and AGE. Returns the number of ticks written.
func FormatTable(w io.Writer, ticks []*ledger.Tick, target *ledger.Target) int {
	if len(ticks) == 0 {
		fmt.Fprintf(w, "No ticks recorded for %s\n", target.URL)
		return 0
	}

	fmt.Fprintf(w, "Ticks for %s:\n\n", target.URL)

	fmt.Fprintf(w, "%-10s %-10s %-6s %-9s %s\n",
		"TICK", "VALIDATOR", "STATUS", "LATENCY", "AGE")
	fmt.Fprintf(w, "%-10s %-10s %-6s %-9s %s\n",
		"----------", "----------", "------", "---------", "--------")

	var up int
	for _, t := range ticks {
		if t.Status == protocol.StatusUp {
			up++
		}
		fmt.Fprintf(w, "%-10s %-10s %-6s %-9s %s\n",
			formatID(t.ID),
			formatID(t.ValidatorID),
			string(t.Status),
			formatLatency(t.LatencyMs),
			formatTimestamp(t.CreatedAtMs),
		)
	}

	noun := "tick"
	if len(ticks) != 1 {
		noun = "ticks"
	}
	fmt.Fprintf(w, "\n%d %s, %d up (%.1f%%)\n", len(ticks), noun, up, 100*float64(up)/float64(len(ticks)))

	return len(ticks)
}

// FormatJSONL writes one compact JSON object per tick.
func FormatJSONL(w io.Writer, ticks []*ledger.Tick) error {
	for _, t := range ticks {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal tick to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// formatID truncates an id to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

func formatLatency(ms int64) string {
	return fmt.Sprintf("%dms", ms)
}

// formatTimestamp renders a millisecond timestamp as a relative age.
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := time.Since(time.UnixMilli(timestampMs))

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
}
