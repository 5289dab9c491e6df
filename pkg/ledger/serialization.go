package ledger

import (
	"fmt"
	"strconv"

	"github.com/dyluth/vigil/pkg/protocol"
)

// Serialization helpers for converting between Go structs and Redis hashes.
// Numeric fields are stored as decimal strings so HINCRBY can operate on them.

// ValidatorToHash converts a Validator to Redis hash fields.
func ValidatorToHash(v *Validator) map[string]interface{} {
	return map[string]interface{}{
		"id":              v.ID,
		"public_key":      v.PublicKey,
		"ip":              v.IP,
		"location":        v.Location,
		"pending_payouts": strconv.FormatInt(v.PendingPayouts, 10),
		"created_at_ms":   strconv.FormatInt(v.CreatedAtMs, 10),
	}
}

// HashToValidator converts Redis hash fields to a Validator.
func HashToValidator(hash map[string]string) (*Validator, error) {
	payouts, err := strconv.ParseInt(hash["pending_payouts"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid pending_payouts field: %w", err)
	}
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &Validator{
		ID:             hash["id"],
		PublicKey:      hash["public_key"],
		IP:             hash["ip"],
		Location:       hash["location"],
		PendingPayouts: payouts,
		CreatedAtMs:    createdAtMs,
	}, nil
}

// TargetToHash converts a Target to Redis hash fields.
func TargetToHash(t *Target) map[string]interface{} {
	return map[string]interface{}{
		"id":            t.ID,
		"url":           t.URL,
		"disabled":      strconv.FormatBool(t.Disabled),
		"created_at_ms": strconv.FormatInt(t.CreatedAtMs, 10),
	}
}

// HashToTarget converts Redis hash fields to a Target.
func HashToTarget(hash map[string]string) (*Target, error) {
	disabled, err := strconv.ParseBool(hash["disabled"])
	if err != nil {
		return nil, fmt.Errorf("invalid disabled field: %w", err)
	}
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &Target{
		ID:          hash["id"],
		URL:         hash["url"],
		Disabled:    disabled,
		CreatedAtMs: createdAtMs,
	}, nil
}

// HashToTick converts Redis hash fields to a Tick.
func HashToTick(hash map[string]string) (*Tick, error) {
	latency, err := strconv.ParseInt(hash["latency_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latency_ms field: %w", err)
	}
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &Tick{
		ID:          hash["id"],
		TargetID:    hash["target_id"],
		ValidatorID: hash["validator_id"],
		Status:      protocol.Status(hash["status"]),
		LatencyMs:   latency,
		CreatedAtMs: createdAtMs,
	}, nil
}
