// Package ledger is the durable store behind the vigil hub.
//
// # Overview
//
// The ledger records three kinds of state:
//
//   - Validators: durable identities keyed by their base58 Ed25519 public key,
//     carrying the validator's pending payout balance.
//   - Targets: monitored URLs. The hub only reads the active subset; creating
//     and disabling targets is the job of the surrounding CRUD service.
//   - Ticks: append-only check results, one per verified validator report.
//
// A tick insert and the matching payout credit are a single atomic unit:
// either both are applied or neither is.
//
// # Backends
//
// RedisStore is the default backend. All keys are namespaced by instance name
// so several hubs can share one Redis server:
//
//	Validators:        vigil:{instance}:validator:{validator_id}
//	Public key index:  vigil:{instance}:validator_by_key:{public_key}
//	Validator set:     vigil:{instance}:validators
//	Targets:           vigil:{instance}:target:{target_id}
//	Target set:        vigil:{instance}:targets
//	Ticks:             vigil:{instance}:tick:{tick_id}
//	Tick index (ZSET): vigil:{instance}:target:{target_id}:ticks
//	Tick events:       vigil:{instance}:tick_events
//
// Atomicity is provided by Lua scripts that validate every precondition before
// the first write, so a failing commit never leaves partial state behind.
//
// PostgresStore keeps the same model in three tables and relies on a SQL
// transaction for the tick+credit unit.
package ledger
