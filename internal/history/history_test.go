package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/vigil/pkg/ledger"
	"github.com/dyluth/vigil/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	ticks []*ledger.Tick // newest first
	err   error
	limit int
}

func (f *fakeReader) ListTicks(ctx context.Context, targetID string, limit int) ([]*ledger.Tick, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.ticks, nil
}

var target = &ledger.Target{ID: "0d4f6c2e-0000-4000-8000-000000000001", URL: "https://example.com"}

func tickAt(id, validator string, status protocol.Status, latency int64, at time.Time) *ledger.Tick {
	return &ledger.Tick{
		ID:          id,
		TargetID:    target.ID,
		ValidatorID: validator,
		Status:      status,
		LatencyMs:   latency,
		CreatedAtMs: at.UnixMilli(),
	}
}

func TestCriteria(t *testing.T) {
	now := time.Now()
	tick := tickAt("t1", "validator-a", protocol.StatusUp, 10, now)

	tests := []struct {
		name     string
		criteria Criteria
		matches  bool
	}{
		{"empty criteria", Criteria{}, true},
		{"since before tick", Criteria{SinceTimestampMs: now.Add(-time.Minute).UnixMilli()}, true},
		{"since after tick", Criteria{SinceTimestampMs: now.Add(time.Minute).UnixMilli()}, false},
		{"until before tick", Criteria{UntilTimestampMs: now.Add(-time.Minute).UnixMilli()}, false},
		{"status matches", Criteria{Status: protocol.StatusUp}, true},
		{"status differs", Criteria{Status: protocol.StatusDown}, false},
		{"validator matches", Criteria{ValidatorID: "validator-a"}, true},
		{"validator differs", Criteria{ValidatorID: "validator-b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, tt.criteria.Matches(tick))
		})
	}

	assert.False(t, (&Criteria{}).HasFilters())
	assert.True(t, (&Criteria{Status: protocol.StatusDown}).HasFilters())
}

func TestListTicks(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{ticks: []*ledger.Tick{
		tickAt("tick-3", "validator-b", protocol.StatusDown, 1000, now),
		tickAt("tick-2", "validator-a", protocol.StatusUp, 20, now.Add(-time.Minute)),
		tickAt("tick-1", "validator-a", protocol.StatusUp, 10, now.Add(-2*time.Hour)),
	}}

	t.Run("table is chronological with summary", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ListTicks(context.Background(), reader, target, 50, OutputFormatDefault, nil, &buf))
		assert.Equal(t, 50, reader.limit)

		out := buf.String()
		assert.Contains(t, out, "Ticks for https://example.com")
		assert.Less(t, strings.Index(out, "tick-1"), strings.Index(out, "tick-3"))
		assert.Contains(t, out, "1000ms")
		assert.Contains(t, out, "2h ago")
		assert.Contains(t, out, "3 ticks, 2 up (66.7%)")
	})

	t.Run("jsonl applies filters", func(t *testing.T) {
		var buf bytes.Buffer
		filters := &Criteria{ValidatorID: "validator-a"}
		require.NoError(t, ListTicks(context.Background(), reader, target, 0, OutputFormatJSONL, filters, &buf))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)

		var first ledger.Tick
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		assert.Equal(t, "tick-1", first.ID)
		assert.Equal(t, protocol.StatusUp, first.Status)
	})

	t.Run("no matching ticks", func(t *testing.T) {
		var buf bytes.Buffer
		filters := &Criteria{ValidatorID: "nobody"}
		require.NoError(t, ListTicks(context.Background(), reader, target, 0, OutputFormatDefault, filters, &buf))
		assert.Contains(t, buf.String(), "No ticks recorded for https://example.com")
	})

	t.Run("unknown format", func(t *testing.T) {
		err := ListTicks(context.Background(), reader, target, 0, OutputFormat("xml"), nil, &bytes.Buffer{})
		assert.ErrorContains(t, err, "unknown output format")
	})

	t.Run("store error", func(t *testing.T) {
		failing := &fakeReader{err: errors.New("connection refused")}
		err := ListTicks(context.Background(), failing, target, 0, OutputFormatDefault, nil, &bytes.Buffer{})
		assert.ErrorContains(t, err, "failed to list ticks")
	})
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "abcdefgh", formatID("abcdefgh-1234"))
	assert.Equal(t, "short", formatID("short"))
	assert.Equal(t, "-", formatID(""))
	assert.Equal(t, "-", formatTimestamp(0))
	assert.Equal(t, "3d ago", formatTimestamp(time.Now().Add(-73*time.Hour).UnixMilli()))
}
