package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/vigil/pkg/protocol"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownValidator is returned when crediting a validator that has no identity record.
	ErrUnknownValidator = errors.New("unknown validator")
)

// IsNotFound reports whether err means "record does not exist".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Validator is a durable validator identity.
// PublicKey is immutable once created and unique across all validators.
type Validator struct {
	ID             string `json:"id"`              // UUID
	PublicKey      string `json:"public_key"`      // base58 Ed25519 public key
	IP             string `json:"ip"`              // address reported at first signup
	Location       string `json:"location"`        // "city, region country", empty if unknown
	PendingPayouts int64  `json:"pending_payouts"` // accrued, not yet disbursed
	CreatedAtMs    int64  `json:"created_at_ms"`
}

// Target is a monitored URL.
type Target struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Disabled    bool   `json:"disabled"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// Active reports whether the target should be dispatched.
func (t *Target) Active() bool {
	return !t.Disabled
}

// Validate checks that a target can be stored.
func (t *Target) Validate() error {
	if _, err := uuid.Parse(t.ID); err != nil {
		return fmt.Errorf("target id must be a UUID: %w", err)
	}
	if t.URL == "" {
		return fmt.Errorf("target url is required")
	}
	return nil
}

// Tick is one verified check result. Ticks are never updated or deleted.
type Tick struct {
	ID          string          `json:"id"`
	TargetID    string          `json:"target_id"`
	ValidatorID string          `json:"validator_id"`
	Status      protocol.Status `json:"status"`
	LatencyMs   int64           `json:"latency_ms"`
	CreatedAtMs int64           `json:"created_at_ms"`
}

// Validate checks that a tick is complete before it is committed.
func (t *Tick) Validate() error {
	if _, err := uuid.Parse(t.ID); err != nil {
		return fmt.Errorf("tick id must be a UUID: %w", err)
	}
	if t.TargetID == "" {
		return fmt.Errorf("tick target_id is required")
	}
	if t.ValidatorID == "" {
		return fmt.Errorf("tick validator_id is required")
	}
	if err := t.Status.Validate(); err != nil {
		return err
	}
	if t.LatencyMs < 0 {
		return fmt.Errorf("tick latency_ms must be >= 0, got %d", t.LatencyMs)
	}
	return nil
}

// Store is the full durable-store contract implemented by every backend.
type Store interface {
	// ListActiveTargets returns every target that is not disabled.
	ListActiveTargets(ctx context.Context) ([]*Target, error)

	// PutTarget creates or replaces a target.
	PutTarget(ctx context.Context, t *Target) error

	// FindValidatorByPublicKey returns ErrNotFound if no identity uses publicKey.
	FindValidatorByPublicKey(ctx context.Context, publicKey string) (*Validator, error)

	// FindOrCreateValidator returns the identity bound to publicKey, creating it
	// if needed. created reports whether a new record was written.
	FindOrCreateValidator(ctx context.Context, publicKey, ip, location string) (v *Validator, created bool, err error)

	// GetValidator returns ErrNotFound if the id is unknown.
	GetValidator(ctx context.Context, validatorID string) (*Validator, error)

	// ListValidators returns every identity ordered by creation time.
	ListValidators(ctx context.Context) ([]*Validator, error)

	// AppendTickAndCredit inserts tick and adds amount to the validator's
	// pending payouts in one atomic unit.
	AppendTickAndCredit(ctx context.Context, tick *Tick, amount int64) error

	// ListTicks returns up to limit of the most recent ticks for a target, newest first.
	ListTicks(ctx context.Context, targetID string, limit int) ([]*Tick, error)

	Ping(ctx context.Context) error
	Close() error
}
