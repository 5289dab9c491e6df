package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dyluth/vigil/pkg/ledger"
)

// MinShortIDLength is the minimum length of a target id prefix.
const MinShortIDLength = 6

// TargetLister is the subset of the ledger used to resolve target ids.
type TargetLister interface {
	ListActiveTargets(ctx context.Context) ([]*ledger.Target, error)
}

// ResolveTarget finds the active target whose id is ref or starts with ref.
// A ref that is not a full id must be at least MinShortIDLength characters
// and match exactly one target.
func ResolveTarget(ctx context.Context, store TargetLister, ref string) (*ledger.Target, error) {
	isFullID := len(ref) == 36 && strings.Count(ref, "-") == 4
	if !isFullID && len(ref) < MinShortIDLength {
		return nil, fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(ref))
	}

	targets, err := store.ListActiveTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search for target: %w", err)
	}

	var matches []*ledger.Target
	for _, t := range targets {
		if t.ID == ref {
			return t, nil
		}
		if !isFullID && strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 0:
		return nil, &NotFoundError{ShortID: ref}
	case 1:
		return matches[0], nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	sort.Strings(ids)
	return nil, &AmbiguousError{ShortID: ref, Matches: ids}
}

// NotFoundError indicates no active target matched the reference.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no active targets found matching '%s'", e.ShortID)
}

// AmbiguousError indicates several targets matched the prefix.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d targets", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists up to 10 matching ids for display.
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d targets:\n", err.ShortID, len(err.Matches))

	shown := min(len(err.Matches), 10)
	for _, id := range err.Matches[:shown] {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if len(err.Matches) > shown {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-shown)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the target.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
