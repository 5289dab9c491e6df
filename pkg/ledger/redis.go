package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// findOrCreateValidatorScript resolves a public key to a validator id, creating
// the identity if the index has no entry. Running it as one script makes the
// lookup and the create a single step, so concurrent signups with the same key
// can never produce two identities.
//
// KEYS[1] public key index, KEYS[2] validator set, KEYS[3] new validator hash
// ARGV    id, public_key, ip, location, created_at_ms
var findOrCreateValidatorScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
	return {existing, 0}
end
redis.call('HSET', KEYS[3],
	'id', ARGV[1], 'public_key', ARGV[2], 'ip', ARGV[3], 'location', ARGV[4],
	'pending_payouts', '0', 'created_at_ms', ARGV[5])
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[1])
return {ARGV[1], 1}
`)

// appendTickAndCreditScript writes a tick and credits the validator.
// Redis does not roll back a script that fails half way, so the credit runs
// first: HINCRBY is the only step that can fail on stored data (a balance
// that is not an integer or would overflow), and when it fails nothing has
// been written yet.
//
// KEYS[1] validator hash, KEYS[2] tick hash, KEYS[3] target tick index
// ARGV    amount, tick id, target id, validator id, status, latency_ms, created_at_ms
var appendTickAndCreditScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return redis.error_reply('unknown validator')
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return redis.error_reply('duplicate tick')
end
local balance = redis.call('HINCRBY', KEYS[1], 'pending_payouts', ARGV[1])
redis.call('HSET', KEYS[2],
	'id', ARGV[2], 'target_id', ARGV[3], 'validator_id', ARGV[4],
	'status', ARGV[5], 'latency_ms', ARGV[6], 'created_at_ms', ARGV[7])
redis.call('ZADD', KEYS[3], ARGV[7], ARGV[2])
return balance
`)

// RedisStore is the Redis-backed ledger.
// All keys and channels are namespaced with the instance name.
// It is safe for concurrent use.
type RedisStore struct {
	rdb          *redis.Client
	instanceName string
}

// NewRedisStore creates a ledger for the given instance.
// Returns an error if instanceName is empty.
func NewRedisStore(redisOpts *redis.Options, instanceName string) (*RedisStore, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &RedisStore{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// PutTarget writes a target and adds it to the target set.
func (s *RedisStore) PutTarget(ctx context.Context, t *Target) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	if t.CreatedAtMs == 0 {
		t.CreatedAtMs = time.Now().UnixMilli()
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, TargetKey(s.instanceName, t.ID), TargetToHash(t))
		pipe.SAdd(ctx, TargetsKey(s.instanceName), t.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write target to Redis: %w", err)
	}
	return nil
}

// ListActiveTargets returns all enabled targets ordered by creation time.
func (s *RedisStore) ListActiveTargets(ctx context.Context) ([]*Target, error) {
	ids, err := s.rdb.SMembers(ctx, TargetsKey(s.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read target set: %w", err)
	}

	targets := make([]*Target, 0, len(ids))
	for _, id := range ids {
		hash, err := s.rdb.HGetAll(ctx, TargetKey(s.instanceName, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read target %s: %w", id, err)
		}
		// set member without a hash: target deleted by the CRUD service
		if len(hash) == 0 {
			continue
		}
		target, err := HashToTarget(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize target %s: %w", id, err)
		}
		if target.Active() {
			targets = append(targets, target)
		}
	}

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].CreatedAtMs != targets[j].CreatedAtMs {
			return targets[i].CreatedAtMs < targets[j].CreatedAtMs
		}
		return targets[i].ID < targets[j].ID
	})
	return targets, nil
}

// FindValidatorByPublicKey looks up an identity through the public key index.
func (s *RedisStore) FindValidatorByPublicKey(ctx context.Context, publicKey string) (*Validator, error) {
	id, err := s.rdb.Get(ctx, ValidatorByKeyKey(s.instanceName, publicKey)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read public key index: %w", err)
	}
	return s.GetValidator(ctx, id)
}

// FindOrCreateValidator returns the identity bound to publicKey, creating it atomically if absent.
func (s *RedisStore) FindOrCreateValidator(ctx context.Context, publicKey, ip, location string) (*Validator, bool, error) {
	if publicKey == "" {
		return nil, false, fmt.Errorf("public key cannot be empty")
	}

	newID := uuid.New().String()
	keys := []string{
		ValidatorByKeyKey(s.instanceName, publicKey),
		ValidatorsKey(s.instanceName),
		ValidatorKey(s.instanceName, newID),
	}
	res, err := findOrCreateValidatorScript.Run(ctx, s.rdb, keys,
		newID, publicKey, ip, location, time.Now().UnixMilli()).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("failed to find or create validator: %w", err)
	}
	if len(res) != 2 {
		return nil, false, fmt.Errorf("unexpected find-or-create reply: %v", res)
	}

	id, _ := res[0].(string)
	created, _ := res[1].(int64)

	v, err := s.GetValidator(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return v, created == 1, nil
}

// GetValidator reads a validator identity by id.
func (s *RedisStore) GetValidator(ctx context.Context, validatorID string) (*Validator, error) {
	hash, err := s.rdb.HGetAll(ctx, ValidatorKey(s.instanceName, validatorID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read validator from Redis: %w", err)
	}
	if len(hash) == 0 {
		return nil, ErrNotFound
	}

	v, err := HashToValidator(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize validator: %w", err)
	}
	return v, nil
}

// ListValidators returns all validator identities ordered by creation time.
func (s *RedisStore) ListValidators(ctx context.Context) ([]*Validator, error) {
	ids, err := s.rdb.SMembers(ctx, ValidatorsKey(s.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read validator set: %w", err)
	}

	validators := make([]*Validator, 0, len(ids))
	for _, id := range ids {
		v, err := s.GetValidator(ctx, id)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		validators = append(validators, v)
	}

	sort.Slice(validators, func(i, j int) bool {
		if validators[i].CreatedAtMs != validators[j].CreatedAtMs {
			return validators[i].CreatedAtMs < validators[j].CreatedAtMs
		}
		return validators[i].ID < validators[j].ID
	})
	return validators, nil
}

// AppendTickAndCredit commits a tick and its payout credit atomically, then
// publishes the tick on the instance's tick_events channel.
// Publishing is best-effort: subscribers get at-most-once delivery and a failed
// publish does not fail the commit.
func (s *RedisStore) AppendTickAndCredit(ctx context.Context, tick *Tick, amount int64) error {
	if err := tick.Validate(); err != nil {
		return fmt.Errorf("invalid tick: %w", err)
	}
	if amount < 0 {
		return fmt.Errorf("credit amount must be >= 0, got %d", amount)
	}
	if tick.CreatedAtMs == 0 {
		tick.CreatedAtMs = time.Now().UnixMilli()
	}

	keys := []string{
		ValidatorKey(s.instanceName, tick.ValidatorID),
		TickKey(s.instanceName, tick.ID),
		TargetTicksKey(s.instanceName, tick.TargetID),
	}
	err := appendTickAndCreditScript.Run(ctx, s.rdb, keys,
		amount, tick.ID, tick.TargetID, tick.ValidatorID,
		string(tick.Status), tick.LatencyMs, tick.CreatedAtMs).Err()
	if err != nil {
		if strings.Contains(err.Error(), "unknown validator") {
			return fmt.Errorf("failed to commit tick: %w", ErrUnknownValidator)
		}
		return fmt.Errorf("failed to commit tick: %w", err)
	}

	// the tick is committed at this point; a lost event must not turn into an error
	if tickJSON, err := json.Marshal(tick); err == nil {
		s.rdb.Publish(ctx, TickEventsChannel(s.instanceName), tickJSON)
	}

	return nil
}

// ListTicks returns up to limit of the newest ticks for a target.
// A limit <= 0 returns all ticks.
func (s *RedisStore) ListTicks(ctx context.Context, targetID string, limit int) ([]*Tick, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := s.rdb.ZRevRange(ctx, TargetTicksKey(s.instanceName, targetID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tick index: %w", err)
	}

	ticks := make([]*Tick, 0, len(ids))
	for _, id := range ids {
		hash, err := s.rdb.HGetAll(ctx, TickKey(s.instanceName, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read tick %s: %w", id, err)
		}
		if len(hash) == 0 {
			continue
		}
		tick, err := HashToTick(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize tick %s: %w", id, err)
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

// CountTicks returns the number of ticks recorded for a target.
func (s *RedisStore) CountTicks(ctx context.Context, targetID string) (int64, error) {
	n, err := s.rdb.ZCard(ctx, TargetTicksKey(s.instanceName, targetID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count ticks: %w", err)
	}
	return n, nil
}
