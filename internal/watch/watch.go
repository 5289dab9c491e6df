// Package watch streams committed ticks to an operator terminal.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/vigil/pkg/ledger"
	"github.com/dyluth/vigil/pkg/protocol"
)

// OutputFormat selects how streamed ticks are written.
type OutputFormat string

const (
	// OutputFormatDefault is human-readable, one line per tick
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON is line-delimited JSON
	OutputFormatJSON OutputFormat = "json"
)

// TickSource yields committed ticks until it is closed.
type TickSource interface {
	Events() <-chan *ledger.Tick
	Errors() <-chan error
}

// formatter writes one tick.
type formatter interface {
	FormatTick(t *ledger.Tick) error
}

func newFormatter(format OutputFormat, w io.Writer) (formatter, error) {
	switch format {
	case OutputFormatDefault, "":
		return &defaultFormatter{writer: w}, nil
	case OutputFormatJSON:
		return &jsonFormatter{encoder: json.NewEncoder(w)}, nil
	}
	return nil, fmt.Errorf("unknown output format: %s", format)
}

// StreamTicks writes every tick from source until ctx is cancelled or the
// source closes. Source errors are reported inline and do not stop the stream.
func StreamTicks(ctx context.Context, source TickSource, format OutputFormat, w io.Writer) error {
	f, err := newFormatter(format, w)
	if err != nil {
		return err
	}

	errs := source.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case tick, ok := <-source.Events():
			if !ok {
				return nil
			}
			if err := f.FormatTick(tick); err != nil {
				return fmt.Errorf("failed to write tick: %w", err)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(w, "⚠️  %v\n", err)
		}
	}
}

type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) FormatTick(t *ledger.Tick) error {
	icon := "✅"
	if t.Status == protocol.StatusDown {
		icon = "❌"
	}

	_, err := fmt.Fprintf(f.writer, "[%s] %s %s target=%s validator=%s latency=%dms\n",
		formatTime(t.CreatedAtMs), icon, t.Status, t.TargetID, t.ValidatorID, t.LatencyMs)
	return err
}

type jsonFormatter struct {
	encoder *json.Encoder
}

func (f *jsonFormatter) FormatTick(t *ledger.Tick) error {
	return f.encoder.Encode(t)
}

func formatTime(ms int64) string {
	if ms == 0 {
		return "--:--:--"
	}
	return time.UnixMilli(ms).Format("15:04:05")
}
