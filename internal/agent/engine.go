// Package agent implements the validator: it holds a keypair, keeps a
// connection to the hub, and answers check assignments with signed results.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyluth/vigil/internal/correlator"
	"github.com/dyluth/vigil/internal/logging"
	"github.com/dyluth/vigil/pkg/protocol"
	"github.com/dyluth/vigil/pkg/signing"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the agent's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateAwaitingIdentity
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAwaitingIdentity:
		return "awaiting_identity"
	case StateActive:
		return "active"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

const (
	defaultMinBackoff = 1 * time.Second
	defaultMaxBackoff = 60 * time.Second
	writeWait         = 10 * time.Second
)

var errSignupTimeout = errors.New("no signup ack from hub")

// Engine runs the validator until its context is cancelled.
type Engine struct {
	cfg    *Config
	keys   *signing.KeyPair
	prober Prober
	dialer *websocket.Dialer
	logger *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	state       atomic.Int32
	mu          sync.RWMutex
	validatorID string
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackoff overrides the reconnect backoff bounds.
func WithBackoff(initial, limit time.Duration) Option {
	return func(e *Engine) {
		e.minBackoff = initial
		e.maxBackoff = limit
	}
}

// WithProber replaces the HTTP prober.
func WithProber(p Prober) Option {
	return func(e *Engine) { e.prober = p }
}

// New creates an engine for cfg using keys as its identity.
func New(cfg *Config, keys *signing.KeyPair, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		keys:       keys,
		prober:     NewHTTPProber(cfg.ProbeTimeout),
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     logger.Named("agent").With(zap.String("public_key", keys.PublicKey().String())),
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current connection state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// ValidatorID returns the id assigned by the hub on this connection, or "".
func (e *Engine) ValidatorID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.validatorID
}

func (e *Engine) setIdentity(id string, state State) {
	e.mu.Lock()
	e.validatorID = id
	e.mu.Unlock()
	e.state.Store(int32(state))
}

// Run connects to the hub and serves assignments, reconnecting with
// exponential backoff whenever the connection is lost. Every reconnect
// repeats the signup handshake. Returns nil once ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	logging.Event(e.logger, "agent_started", zap.String("hub_url", e.cfg.HubURL))

	backoff := e.minBackoff
	for {
		reachedActive, err := e.session(ctx)
		e.setIdentity("", StateDisconnected)

		if ctx.Err() != nil {
			e.logger.Info("agent stopped")
			return nil
		}

		if reachedActive {
			backoff = e.minBackoff
		}
		e.logger.Warn("connection to hub lost, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		if backoff < e.maxBackoff {
			backoff *= 2
			if backoff > e.maxBackoff {
				backoff = e.maxBackoff
			}
		}
	}
}

// link is one live connection. Writes are serialised because assignment
// handlers reply concurrently.
type link struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (l *link) send(msg protocol.AgentMessage) error {
	frame, err := protocol.EncodeAgentMessage(msg)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return l.ws.WriteMessage(websocket.TextMessage, frame)
}

// session runs one connection from dial to disconnect. It reports whether
// the handshake completed.
func (e *Engine) session(ctx context.Context) (bool, error) {
	ws, _, err := e.dialer.DialContext(ctx, e.cfg.HubURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial hub: %w", err)
	}

	sessionCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	l := &link{ws: ws}
	var handlers sync.WaitGroup
	defer func() {
		ws.Close()
		handlers.Wait()
	}()

	go func() {
		<-sessionCtx.Done()
		ws.Close()
	}()

	e.setIdentity("", StateAwaitingIdentity)

	// the only entry this table ever holds is the signup in flight
	signups := correlator.New[*protocol.SignupAck](0)
	callbackID := protocol.NewCallbackID()
	signups.Register(callbackID, "", func(ack *protocol.SignupAck) {
		e.setIdentity(ack.ValidatorID, StateActive)
		logging.Event(e.logger, "signup_acknowledged", zap.String("validator_id", ack.ValidatorID))
	})

	pk := e.keys.PublicKey().String()
	err = l.send(&protocol.SignupRequest{
		PublicKey:     pk,
		IP:            e.cfg.IP,
		CallbackID:    callbackID,
		SignedMessage: e.keys.Sign([]byte(protocol.SignupChallenge(callbackID, pk))).String(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to send signup: %w", err)
	}

	timer := time.AfterFunc(e.cfg.SignupTimeout, func() {
		if signups.Discard(callbackID) {
			cancel(errSignupTimeout)
		}
	})
	defer timer.Stop()

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if cause := context.Cause(sessionCtx); cause != nil && !errors.Is(cause, context.Canceled) {
				err = cause
			}
			return e.State() == StateActive, err
		}

		msg, err := protocol.DecodeHubMessage(frame)
		if err != nil {
			logging.DebugEvent(e.logger, "frame_dropped", zap.Error(err))
			continue
		}

		switch m := msg.(type) {
		case *protocol.SignupAck:
			if !signups.Resolve(m.CallbackID, m) {
				logging.DebugEvent(e.logger, "unexpected_signup_ack", zap.String("callback_id", m.CallbackID))
			}

		case *protocol.ValidateRequest:
			if e.State() != StateActive {
				logging.DebugEvent(e.logger, "assignment_before_identity", zap.String("callback_id", m.CallbackID))
				continue
			}
			handlers.Add(1)
			go func() {
				defer handlers.Done()
				e.handleAssignment(sessionCtx, l, m)
			}()
		}
	}
}

// handleAssignment probes the target and sends the signed result.
func (e *Engine) handleAssignment(ctx context.Context, l *link, req *protocol.ValidateRequest) {
	res, err := e.prober.Get(ctx, req.URL)
	if ctx.Err() != nil {
		// connection is gone; the hub discarded this assignment
		return
	}
	status, latency := Classify(res, err)
	if err != nil {
		e.logger.Debug("probe failed", zap.String("url", req.URL), zap.Error(err))
	}

	reply := &protocol.ValidateReply{
		Status:        status,
		CallbackID:    req.CallbackID,
		Latency:       latency,
		ValidatorID:   e.ValidatorID(),
		SignedMessage: e.keys.Sign([]byte(protocol.ReplyChallenge(req.CallbackID))).String(),
		WebsiteID:     req.WebsiteID,
	}
	if err := l.send(reply); err != nil {
		e.logger.Warn("failed to send result", zap.String("callback_id", req.CallbackID), zap.Error(err))
		return
	}

	logging.Event(e.logger, "check_reported",
		zap.String("url", req.URL),
		zap.String("website_id", req.WebsiteID),
		zap.String("status", string(status)),
		zap.Int64("latency_ms", latency))
}
