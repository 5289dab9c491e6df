package ledger

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name.
// Key pattern: vigil:{instance_name}:{entity}:{id}

// ValidatorKey returns the hash key for a validator identity.
func ValidatorKey(instanceName, validatorID string) string {
	return fmt.Sprintf("vigil:%s:validator:%s", instanceName, validatorID)
}

// ValidatorByKeyKey returns the public key -> validator id index key.
// This index is the sole idempotency guard against duplicate identities.
func ValidatorByKeyKey(instanceName, publicKey string) string {
	return fmt.Sprintf("vigil:%s:validator_by_key:%s", instanceName, publicKey)
}

// ValidatorsKey returns the SET of all validator ids.
func ValidatorsKey(instanceName string) string {
	return fmt.Sprintf("vigil:%s:validators", instanceName)
}

// TargetKey returns the hash key for a monitored target.
func TargetKey(instanceName, targetID string) string {
	return fmt.Sprintf("vigil:%s:target:%s", instanceName, targetID)
}

// TargetsKey returns the SET of all target ids.
func TargetsKey(instanceName string) string {
	return fmt.Sprintf("vigil:%s:targets", instanceName)
}

// TickKey returns the hash key for a single tick.
func TickKey(instanceName, tickID string) string {
	return fmt.Sprintf("vigil:%s:tick:%s", instanceName, tickID)
}

// TargetTicksKey returns the ZSET indexing a target's ticks by creation time (ms).
func TargetTicksKey(instanceName, targetID string) string {
	return fmt.Sprintf("vigil:%s:target:%s:ticks", instanceName, targetID)
}

// TickEventsChannel returns the Pub/Sub channel carrying committed ticks.
func TickEventsChannel(instanceName string) string {
	return fmt.Sprintf("vigil:%s:tick_events", instanceName)
}
