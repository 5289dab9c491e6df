package hub

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dyluth/vigil/internal/correlator"
	"github.com/dyluth/vigil/internal/logging"
	"github.com/dyluth/vigil/pkg/ledger"
	"github.com/dyluth/vigil/pkg/protocol"
	"github.com/dyluth/vigil/pkg/signing"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// storeTimeout bounds one ledger commit. Commits use their own context so a
// verified result is not abandoned half way through a shutdown.
const storeTimeout = 10 * time.Second

// Options tunes a Coordinator.
type Options struct {
	InstanceName      string
	CostPerValidation int64
	AssignmentTimeout time.Duration
	SendBuffer        int
}

// assignment is what the hub bound when it dispatched a check.
type assignment struct {
	callbackID  string
	targetID    string
	url         string
	validatorID string
	publicKey   string
}

// Coordinator runs the per-connection state machine: it authenticates
// signups, attaches validators to the registry, and ingests verified replies
// into the ledger.
type Coordinator struct {
	store    ledger.Store
	registry *Registry
	pending  *correlator.Correlator[*protocol.ValidateReply]
	opts     Options
	metrics  *Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewCoordinator wires a coordinator to its store and registry.
func NewCoordinator(store ledger.Store, registry *Registry, opts Options, metrics *Metrics, logger *zap.Logger) *Coordinator {
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 1
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	c := &Coordinator{
		store:    store,
		registry: registry,
		opts:     opts,
		metrics:  metrics,
		logger:   logger.Named("hub").With(zap.String("instance", opts.InstanceName)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*Conn),
	}
	c.pending = correlator.New[*protocol.ValidateReply](opts.AssignmentTimeout,
		correlator.WithExpiryHook(c.onAssignmentExpired))
	return c
}

// Registry returns the coordinator's validator registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// PendingAssignments returns the number of assignments awaiting a reply.
func (c *Coordinator) PendingAssignments() int {
	return c.pending.Len()
}

// ServeHTTP upgrades the request to a websocket and serves it until it closes.
func (c *Coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(ws, remoteIP(r), c.opts.SendBuffer, c.logger)
	c.track(conn)
	go conn.writePump()

	logging.DebugEvent(c.logger, "connection_opened", zap.String("conn_id", conn.ID()))
	conn.readLoop(func(frame []byte) { c.handleFrame(r.Context(), conn, frame) })
	c.closeConn(conn)
}

// Shutdown closes every open connection.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	conns := make([]*Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (c *Coordinator) track(conn *Conn) {
	c.mu.Lock()
	c.conns[conn.ID()] = conn
	c.mu.Unlock()
	c.metrics.connections.Inc()
}

// closeConn moves the connection to its terminal state: it leaves the
// registry and every assignment sent to it is discarded.
func (c *Coordinator) closeConn(conn *Conn) {
	conn.Close()

	c.mu.Lock()
	delete(c.conns, conn.ID())
	c.mu.Unlock()
	c.metrics.connections.Dec()

	vc, registered := c.registry.Lookup(conn)
	if c.registry.Remove(conn) {
		c.metrics.availableValidators.Set(float64(c.registry.Len()))
	}
	discarded := c.pending.DiscardOwner(conn.ID())

	fields := []zap.Field{zap.String("conn_id", conn.ID()), zap.Int("discarded_assignments", discarded)}
	if registered {
		fields = append(fields, zap.String("validator_id", vc.ValidatorID))
	}
	logging.Event(c.logger, "connection_closed", fields...)
}

func (c *Coordinator) handleFrame(ctx context.Context, conn *Conn, frame []byte) {
	msg, err := protocol.DecodeAgentMessage(frame)
	if err != nil {
		logging.DebugEvent(c.logger, "frame_dropped", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case *protocol.SignupRequest:
		c.handleSignup(ctx, conn, m)
	case *protocol.ValidateReply:
		c.handleReply(conn, m)
	}
}

// handleSignup authenticates a signup and registers the connection.
// A request that fails verification is dropped without a reply and the
// connection may try again.
func (c *Coordinator) handleSignup(ctx context.Context, conn *Conn, req *protocol.SignupRequest) {
	challenge := protocol.SignupChallenge(req.CallbackID, req.PublicKey)
	if !signing.VerifyEncoded(challenge, req.SignedMessage, req.PublicKey) {
		c.metrics.signups.WithLabelValues("rejected").Inc()
		logging.DebugEvent(c.logger, "signup_rejected",
			zap.String("conn_id", conn.ID()),
			zap.String("public_key", req.PublicKey))
		return
	}

	ip := req.IP
	if ip == "" {
		ip = conn.RemoteIP()
	}

	v, err := c.registry.Identify(ctx, req.PublicKey, ip)
	if err != nil {
		c.metrics.signups.WithLabelValues("failed").Inc()
		c.logger.Error("signup failed", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}

	// the ack is queued before the connection becomes dispatchable, so the
	// validator always learns its id before its first assignment
	if err := conn.Send(&protocol.SignupAck{CallbackID: req.CallbackID, ValidatorID: v.ID}); err != nil {
		c.metrics.signups.WithLabelValues("failed").Inc()
		c.logger.Warn("failed to send signup ack", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}

	c.registry.Attach(conn, v)
	c.metrics.signups.WithLabelValues("accepted").Inc()
	c.metrics.availableValidators.Set(float64(c.registry.Len()))

	logging.Event(c.logger, "validator_registered",
		zap.String("conn_id", conn.ID()),
		zap.String("validator_id", v.ID),
		zap.String("ip", ip))
}

// handleReply routes a reply to the assignment it answers. Replies are only
// accepted from the connection the assignment was sent on.
func (c *Coordinator) handleReply(conn *Conn, reply *protocol.ValidateReply) {
	if !c.pending.ResolveFor(conn.ID(), reply.CallbackID, reply) {
		// unknown, late, duplicate or rejected by the guard; all look the same to the peer
		if !c.pending.Pending(reply.CallbackID) {
			c.reject(conn, reply, rejectUnknownCallback)
		}
	}
}

// dispatch registers a pending assignment and queues it on vc's connection.
func (c *Coordinator) dispatch(target *ledger.Target, vc ValidatorConnection) error {
	a := &assignment{
		callbackID:  protocol.NewCallbackID(),
		targetID:    target.ID,
		url:         target.URL,
		validatorID: vc.ValidatorID,
		publicKey:   vc.PublicKey,
	}

	// registered before sending so a fast reply cannot arrive first
	c.pending.RegisterGuarded(a.callbackID, vc.conn.ID(),
		func(reply *protocol.ValidateReply) bool { return c.verifyReply(vc.conn, a, reply) },
		func(reply *protocol.ValidateReply) { c.ingest(a, reply) })

	err := vc.conn.Send(&protocol.ValidateRequest{
		URL:        a.url,
		CallbackID: a.callbackID,
		WebsiteID:  a.targetID,
	})
	if err != nil {
		c.pending.Discard(a.callbackID)
		return err
	}
	return nil
}

// verifyReply checks a reply against the identity bound at dispatch time.
// The signature is verified with the registered key, never one taken from the reply.
func (c *Coordinator) verifyReply(conn *Conn, a *assignment, reply *protocol.ValidateReply) bool {
	switch {
	case reply.ValidatorID != a.validatorID:
		c.reject(conn, reply, rejectValidatorMismatch)
		return false
	case reply.WebsiteID != a.targetID:
		c.reject(conn, reply, rejectTargetMismatch)
		return false
	case reply.Latency < 0:
		c.reject(conn, reply, rejectBadLatency)
		return false
	}

	if !signing.VerifyEncoded(protocol.ReplyChallenge(reply.CallbackID), reply.SignedMessage, a.publicKey) {
		c.reject(conn, reply, rejectBadSignature)
		return false
	}
	return true
}

// ingest commits a verified reply as a tick and credits the validator.
// A store failure is logged; the assignment stays resolved and is not retried.
func (c *Coordinator) ingest(a *assignment, reply *protocol.ValidateReply) {
	tick := &ledger.Tick{
		ID:          uuid.New().String(),
		TargetID:    a.targetID,
		ValidatorID: a.validatorID,
		Status:      reply.Status,
		LatencyMs:   reply.Latency,
		CreatedAtMs: time.Now().UnixMilli(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := c.store.AppendTickAndCredit(ctx, tick, c.opts.CostPerValidation); err != nil {
		c.metrics.storeFailures.Inc()
		c.logger.Error("failed to record tick",
			zap.String("callback_id", a.callbackID),
			zap.String("validator_id", a.validatorID),
			zap.String("target_id", a.targetID),
			zap.Error(err))
		return
	}

	c.metrics.ticksRecorded.WithLabelValues(string(tick.Status)).Inc()
	c.metrics.payoutsCredited.Add(float64(c.opts.CostPerValidation))

	logging.Event(c.logger, "tick_recorded",
		zap.String("tick_id", tick.ID),
		zap.String("target_id", tick.TargetID),
		zap.String("validator_id", tick.ValidatorID),
		zap.String("status", string(tick.Status)),
		zap.Int64("latency_ms", tick.LatencyMs))
}

func (c *Coordinator) reject(conn *Conn, reply *protocol.ValidateReply, reason string) {
	c.metrics.repliesRejected.WithLabelValues(reason).Inc()
	logging.DebugEvent(c.logger, "reply_rejected",
		zap.String("conn_id", conn.ID()),
		zap.String("callback_id", reply.CallbackID),
		zap.String("reason", reason))
}

func (c *Coordinator) onAssignmentExpired(callbackID, owner string) {
	c.metrics.expired.Inc()
	logging.Event(c.logger, "assignment_expired",
		zap.String("callback_id", callbackID),
		zap.String("conn_id", owner))
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
