package hub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/vigil/pkg/ledger"
	"github.com/dyluth/vigil/pkg/protocol"
	"github.com/dyluth/vigil/pkg/signing"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCost = 100

// testHub is a coordinator served over httptest and backed by miniredis.
type testHub struct {
	coord   *Coordinator
	store   *ledger.RedisStore
	mr      *miniredis.Miniredis
	metrics *Metrics
	server  *httptest.Server
}

func setupHub(t *testing.T, opts ...func(*Options)) *testHub {
	mr := miniredis.RunT(t)

	store, err := ledger.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)

	o := Options{
		InstanceName:      "test-instance",
		CostPerValidation: testCost,
		AssignmentTimeout: time.Minute,
		SendBuffer:        64,
	}
	for _, fn := range opts {
		fn(&o)
	}

	logger := zap.NewNop()
	metrics := NewMetrics()
	coord := NewCoordinator(store, NewRegistry(store, nil, logger), o, metrics, logger)
	server := httptest.NewServer(NewRouter(coord, store, metrics))

	t.Cleanup(func() {
		coord.Shutdown()
		server.Close()
		store.Close()
	})

	return &testHub{coord: coord, store: store, mr: mr, metrics: metrics, server: server}
}

func (h *testHub) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http") + path
}

func (h *testHub) addTarget(t *testing.T, url string) *ledger.Target {
	target := &ledger.Target{ID: uuid.New().String(), URL: url}
	require.NoError(t, h.store.PutTarget(context.Background(), target))
	return target
}

func (h *testHub) dispatch(t *testing.T) int {
	sent, err := h.coord.DispatchOnce(context.Background())
	require.NoError(t, err)
	return sent
}

func (h *testHub) waitRegistered(t *testing.T, n int) {
	require.Eventually(t, func() bool { return h.coord.Registry().Len() == n },
		2*time.Second, 10*time.Millisecond)
}

// testValidator drives the agent side of the protocol by hand.
type testValidator struct {
	t  *testing.T
	ws *websocket.Conn
	kp *signing.KeyPair
	id string
}

func dialValidator(t *testing.T, url string, kp *signing.KeyPair) *testValidator {
	if kp == nil {
		var err error
		kp, err = signing.GenerateKeyPair()
		require.NoError(t, err)
	}

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	return &testValidator{t: t, ws: ws, kp: kp}
}

func (v *testValidator) send(msg protocol.AgentMessage) {
	frame, err := protocol.EncodeAgentMessage(msg)
	require.NoError(v.t, err)
	require.NoError(v.t, v.ws.WriteMessage(websocket.TextMessage, frame))
}

func (v *testValidator) read() protocol.HubMessage {
	v.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := v.ws.ReadMessage()
	require.NoError(v.t, err)
	msg, err := protocol.DecodeHubMessage(frame)
	require.NoError(v.t, err)
	return msg
}

func (v *testValidator) signupRequest(callbackID string) *protocol.SignupRequest {
	pk := v.kp.PublicKey().String()
	return &protocol.SignupRequest{
		PublicKey:     pk,
		IP:            "203.0.113.7",
		CallbackID:    callbackID,
		SignedMessage: v.kp.Sign([]byte(protocol.SignupChallenge(callbackID, pk))).String(),
	}
}

// signup performs the handshake and returns the assigned validator id.
func (v *testValidator) signup() string {
	callbackID := protocol.NewCallbackID()
	v.send(v.signupRequest(callbackID))

	ack, ok := v.read().(*protocol.SignupAck)
	require.True(v.t, ok, "expected signup ack")
	require.Equal(v.t, callbackID, ack.CallbackID)
	v.id = ack.ValidatorID
	return v.id
}

func (v *testValidator) readAssignment() *protocol.ValidateRequest {
	req, ok := v.read().(*protocol.ValidateRequest)
	require.True(v.t, ok, "expected validate request")
	return req
}

func (v *testValidator) replyTo(req *protocol.ValidateRequest, status protocol.Status, latency int64) *protocol.ValidateReply {
	return &protocol.ValidateReply{
		Status:        status,
		CallbackID:    req.CallbackID,
		Latency:       latency,
		ValidatorID:   v.id,
		SignedMessage: v.kp.Sign([]byte(protocol.ReplyChallenge(req.CallbackID))).String(),
		WebsiteID:     req.WebsiteID,
	}
}
