package hub

import (
	"context"
	"testing"
	"time"

	"github.com/dyluth/vigil/pkg/ledger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchOnceFanOut(t *testing.T) {
	h := setupHub(t)

	const targets, validators = 3, 4
	for i := 0; i < targets; i++ {
		h.addTarget(t, "https://example.com/"+uuid.New().String())
	}
	// disabled targets are never dispatched
	require.NoError(t, h.store.PutTarget(context.Background(), &ledger.Target{
		ID: uuid.New().String(), URL: "https://disabled.example", Disabled: true,
	}))

	clients := make([]*testValidator, validators)
	for i := range clients {
		clients[i] = dialValidator(t, h.wsURL("/ws"), nil)
		clients[i].signup()
	}
	h.waitRegistered(t, validators)

	sent := h.dispatch(t)
	assert.Equal(t, targets*validators, sent)
	assert.Equal(t, targets*validators, h.coord.PendingAssignments())

	seen := make(map[string]bool)
	for _, c := range clients {
		websites := make(map[string]bool)
		for i := 0; i < targets; i++ {
			req := c.readAssignment()
			assert.False(t, seen[req.CallbackID], "callback id reused: %s", req.CallbackID)
			seen[req.CallbackID] = true
			websites[req.WebsiteID] = true
		}
		assert.Len(t, websites, targets, "every validator checks every target")
	}
	assert.Len(t, seen, targets*validators)
}

func TestDispatchOnceNothingToDo(t *testing.T) {
	h := setupHub(t)

	assert.Equal(t, 0, h.dispatch(t), "no targets, no validators")

	h.addTarget(t, "https://example.com")
	assert.Equal(t, 0, h.dispatch(t), "no validators")
	assert.Equal(t, 0, h.coord.PendingAssignments())
}

func TestDispatchOnceStoreError(t *testing.T) {
	h := setupHub(t)
	h.mr.Close()

	_, err := h.coord.DispatchOnce(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list active targets")
}

func TestDispatchFullBuffer(t *testing.T) {
	h := setupHub(t, func(o *Options) { o.SendBuffer = 1 })
	for i := 0; i < 3; i++ {
		h.addTarget(t, "https://example.com/"+uuid.New().String())
	}

	conn := fakeConn("stalled")
	conn.send = make(chan []byte, 1)
	conn.done = make(chan struct{})
	_, err := h.coord.Registry().Upsert(context.Background(), "PK-stalled", "", conn)
	require.NoError(t, err)

	// nothing drains the fake connection, so only the first frame fits
	sent := h.dispatch(t)
	assert.Equal(t, 1, sent)
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.dispatchFailures))
	assert.Equal(t, 1, h.coord.PendingAssignments(), "unsent assignments are discarded")

	conn.Close()
	assert.Equal(t, 0, h.dispatch(t))
	assert.Equal(t, 1, h.coord.PendingAssignments())
}

func TestRunScheduler(t *testing.T) {
	h := setupHub(t)
	h.addTarget(t, "https://example.com")
	v := dialValidator(t, h.wsURL("/ws"), nil)
	v.signup()
	h.waitRegistered(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.coord.RunScheduler(ctx, 20*time.Millisecond) }()

	first := v.readAssignment()
	second := v.readAssignment()
	assert.NotEqual(t, first.CallbackID, second.CallbackID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
