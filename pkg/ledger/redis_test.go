package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/vigil/pkg/protocol"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a store connected to a miniredis instance
func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func newTick(targetID, validatorID string, status protocol.Status, latency int64) *Tick {
	return &Tick{
		ID:          uuid.New().String(),
		TargetID:    targetID,
		ValidatorID: validatorID,
		Status:      status,
		LatencyMs:   latency,
	}
}

func TestNewRedisStore(t *testing.T) {
	t.Run("creates store successfully", func(t *testing.T) {
		store, _ := setupTestStore(t)
		assert.NoError(t, store.Ping(context.Background()))
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewRedisStore(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestFindOrCreateValidator(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	t.Run("creates identity on first signup", func(t *testing.T) {
		v, created, err := store.FindOrCreateValidator(ctx, "PK-new", "10.0.0.1", "Berlin, Berlin Germany")
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEmpty(t, v.ID)
		assert.Equal(t, "PK-new", v.PublicKey)
		assert.Equal(t, "10.0.0.1", v.IP)
		assert.Equal(t, "Berlin, Berlin Germany", v.Location)
		assert.Equal(t, int64(0), v.PendingPayouts)
		assert.True(t, mr.Exists(ValidatorKey("test-instance", v.ID)))
	})

	t.Run("same key resolves to same identity", func(t *testing.T) {
		first, created, err := store.FindOrCreateValidator(ctx, "PK-idem", "10.0.0.2", "")
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := store.FindOrCreateValidator(ctx, "PK-idem", "10.9.9.9", "elsewhere")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "10.0.0.2", second.IP, "existing identity must not be overwritten")
	})

	t.Run("concurrent signups create exactly one identity", func(t *testing.T) {
		const n = 20
		ids := make([]string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, _, err := store.FindOrCreateValidator(ctx, "PK-race", "1.1.1.1", "")
				assert.NoError(t, err)
				if v != nil {
					ids[i] = v.ID
				}
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}

		all, err := store.ListValidators(ctx)
		require.NoError(t, err)
		count := 0
		for _, v := range all {
			if v.PublicKey == "PK-race" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("rejects empty key", func(t *testing.T) {
		_, _, err := store.FindOrCreateValidator(ctx, "", "", "")
		assert.Error(t, err)
	})
}

func TestFindValidatorByPublicKey(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.FindValidatorByPublicKey(ctx, "PK-missing")
	assert.True(t, IsNotFound(err))

	created, _, err := store.FindOrCreateValidator(ctx, "PK-1", "", "")
	require.NoError(t, err)

	found, err := store.FindValidatorByPublicKey(ctx, "PK-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = store.GetValidator(ctx, uuid.New().String())
	assert.True(t, IsNotFound(err))
}

func TestListActiveTargets(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	active := &Target{ID: uuid.New().String(), URL: "https://example.com", CreatedAtMs: 1}
	later := &Target{ID: uuid.New().String(), URL: "https://example.org", CreatedAtMs: 2}
	disabled := &Target{ID: uuid.New().String(), URL: "https://gone.example", Disabled: true}
	for _, tg := range []*Target{later, disabled, active} {
		require.NoError(t, store.PutTarget(ctx, tg))
	}

	// dangling set member left behind by a deleted target
	mr.SAdd(TargetsKey("test-instance"), uuid.New().String())

	targets, err := store.ListActiveTargets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, active.ID, targets[0].ID)
	assert.Equal(t, later.ID, targets[1].ID)

	t.Run("rejects invalid target", func(t *testing.T) {
		err := store.PutTarget(ctx, &Target{ID: "nope", URL: "https://x"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid target")
	})
}

func TestAppendTickAndCredit(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	target := &Target{ID: uuid.New().String(), URL: "https://example.com"}
	require.NoError(t, store.PutTarget(ctx, target))
	v, _, err := store.FindOrCreateValidator(ctx, "PK1", "", "")
	require.NoError(t, err)

	t.Run("records tick and credits balance", func(t *testing.T) {
		tick := newTick(target.ID, v.ID, protocol.StatusUp, 42)
		require.NoError(t, store.AppendTickAndCredit(ctx, tick, 100))

		ticks, err := store.ListTicks(ctx, target.ID, 10)
		require.NoError(t, err)
		require.Len(t, ticks, 1)
		assert.Equal(t, protocol.StatusUp, ticks[0].Status)
		assert.Equal(t, int64(42), ticks[0].LatencyMs)
		assert.Equal(t, v.ID, ticks[0].ValidatorID)
		assert.NotZero(t, ticks[0].CreatedAtMs)

		got, err := store.GetValidator(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), got.PendingPayouts)
	})

	t.Run("unknown validator writes nothing", func(t *testing.T) {
		before, err := store.CountTicks(ctx, target.ID)
		require.NoError(t, err)

		tick := newTick(target.ID, uuid.New().String(), protocol.StatusUp, 5)
		err = store.AppendTickAndCredit(ctx, tick, 100)
		assert.ErrorIs(t, err, ErrUnknownValidator)

		after, err := store.CountTicks(ctx, target.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.False(t, mr.Exists(TickKey("test-instance", tick.ID)))
	})

	t.Run("failure mid-commit leaves neither write", func(t *testing.T) {
		before, err := store.CountTicks(ctx, target.ID)
		require.NoError(t, err)

		// corrupt the balance so the credit step cannot succeed
		mr.HSet(ValidatorKey("test-instance", v.ID), "pending_payouts", "not-a-number")

		tick := newTick(target.ID, v.ID, protocol.StatusDown, 1000)
		err = store.AppendTickAndCredit(ctx, tick, 100)
		require.Error(t, err)

		after, err := store.CountTicks(ctx, target.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after, "no tick may be recorded without its credit")
		assert.False(t, mr.Exists(TickKey("test-instance", tick.ID)))
		assert.Equal(t, "not-a-number", mr.HGet(ValidatorKey("test-instance", v.ID), "pending_payouts"))

		mr.HSet(ValidatorKey("test-instance", v.ID), "pending_payouts", "100")
	})

	t.Run("balance overflow leaves neither write", func(t *testing.T) {
		before, err := store.CountTicks(ctx, target.ID)
		require.NoError(t, err)

		// all digits, but outside the int64 range
		mr.HSet(ValidatorKey("test-instance", v.ID), "pending_payouts", "99999999999999999999")

		tick := newTick(target.ID, v.ID, protocol.StatusUp, 12)
		err = store.AppendTickAndCredit(ctx, tick, 100)
		require.Error(t, err)

		after, err := store.CountTicks(ctx, target.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after, "no tick may be recorded without its credit")
		assert.False(t, mr.Exists(TickKey("test-instance", tick.ID)))
		assert.Equal(t, "99999999999999999999", mr.HGet(ValidatorKey("test-instance", v.ID), "pending_payouts"))

		mr.HSet(ValidatorKey("test-instance", v.ID), "pending_payouts", "100")
	})

	t.Run("duplicate tick id rejected", func(t *testing.T) {
		tick := newTick(target.ID, v.ID, protocol.StatusUp, 10)
		require.NoError(t, store.AppendTickAndCredit(ctx, tick, 100))
		err := store.AppendTickAndCredit(ctx, tick, 100)
		assert.Error(t, err)

		got, err := store.GetValidator(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(200), got.PendingPayouts)
	})

	t.Run("rejects invalid tick", func(t *testing.T) {
		err := store.AppendTickAndCredit(ctx, &Tick{ID: uuid.New().String(), TargetID: target.ID, ValidatorID: v.ID, Status: "maybe"}, 100)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid tick")
	})
}

func TestListTicksOrder(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	v, _, err := store.FindOrCreateValidator(ctx, "PK1", "", "")
	require.NoError(t, err)
	targetID := uuid.New().String()

	for i := 1; i <= 5; i++ {
		tick := newTick(targetID, v.ID, protocol.StatusUp, int64(i))
		tick.CreatedAtMs = int64(i * 1000)
		require.NoError(t, store.AppendTickAndCredit(ctx, tick, 1))
	}

	ticks, err := store.ListTicks(ctx, targetID, 3)
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	assert.Equal(t, []int64{5, 4, 3}, []int64{ticks[0].LatencyMs, ticks[1].LatencyMs, ticks[2].LatencyMs})

	all, err := store.ListTicks(ctx, targetID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestSubscribeTickEvents(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	v, _, err := store.FindOrCreateValidator(ctx, "PK1", "", "")
	require.NoError(t, err)

	sub, err := store.SubscribeTickEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	tick := newTick(uuid.New().String(), v.ID, protocol.StatusUp, 42)
	require.NoError(t, store.AppendTickAndCredit(ctx, tick, 100))

	select {
	case got := <-sub.Events():
		assert.Equal(t, tick.ID, got.ID)
		assert.Equal(t, int64(42), got.LatencyMs)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for tick event")
	}

	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "vigil:prod:validator:abc", ValidatorKey("prod", "abc"))
	assert.Equal(t, "vigil:prod:validator_by_key:PK", ValidatorByKeyKey("prod", "PK"))
	assert.Equal(t, "vigil:prod:target:t1:ticks", TargetTicksKey("prod", "t1"))
	assert.Equal(t, "vigil:prod:tick_events", TickEventsChannel("prod"))
	assert.Equal(t, fmt.Sprintf("vigil:%s:targets", "prod"), TargetsKey("prod"))
}
