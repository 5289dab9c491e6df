package hub

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dyluth/vigil/internal/logging"
	"github.com/dyluth/vigil/pkg/ledger"
	"go.uber.org/zap"
)

// IdentityStore is the part of the ledger the registry needs.
type IdentityStore interface {
	FindValidatorByPublicKey(ctx context.Context, publicKey string) (*ledger.Validator, error)
	FindOrCreateValidator(ctx context.Context, publicKey, ip, location string) (*ledger.Validator, bool, error)
}

// ValidatorConnection is a registered, live validator.
// It exists only while its connection is open.
type ValidatorConnection struct {
	ValidatorID string    `json:"validatorId"`
	PublicKey   string    `json:"publicKey"`
	ConnectedAt time.Time `json:"connectedAt"`

	conn *Conn
}

// Conn returns the connection the validator is reachable on.
func (v ValidatorConnection) Conn() *Conn {
	return v.conn
}

// Registry maps open connections to durable validator identities.
// It is safe for concurrent use.
type Registry struct {
	store   IdentityStore
	locator Locator
	logger  *zap.Logger

	mu     sync.RWMutex
	byConn map[string]ValidatorConnection
}

// NewRegistry creates an empty registry. A nil locator disables location lookups.
func NewRegistry(store IdentityStore, locator Locator, logger *zap.Logger) *Registry {
	if locator == nil {
		locator = NopLocator{}
	}
	return &Registry{
		store:   store,
		locator: locator,
		logger:  logger.Named("registry"),
		byConn:  make(map[string]ValidatorConnection),
	}
}

// Identify resolves publicKey to its durable identity, creating it on first
// sight. Only new identities trigger a location lookup, and a failed lookup
// leaves the location empty.
func (r *Registry) Identify(ctx context.Context, publicKey, ip string) (*ledger.Validator, error) {
	existing, err := r.store.FindValidatorByPublicKey(ctx, publicKey)
	if err == nil {
		return existing, nil
	}
	if !ledger.IsNotFound(err) {
		return nil, fmt.Errorf("failed to look up validator: %w", err)
	}

	location := ""
	if ip != "" {
		loc, err := r.locator.Locate(ctx, ip)
		if err != nil {
			r.logger.Warn("location lookup failed", zap.String("ip", ip), zap.Error(err))
		} else {
			location = loc.String()
		}
	}

	v, created, err := r.store.FindOrCreateValidator(ctx, publicKey, ip, location)
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}
	if created {
		logging.Event(r.logger, "validator_created",
			zap.String("validator_id", v.ID),
			zap.String("public_key", v.PublicKey),
			zap.String("location", v.Location))
	}
	return v, nil
}

// Attach binds conn to an identity. A connection holds at most one identity;
// attaching again replaces the previous binding.
func (r *Registry) Attach(conn *Conn, v *ledger.Validator) ValidatorConnection {
	vc := ValidatorConnection{
		ValidatorID: v.ID,
		PublicKey:   v.PublicKey,
		ConnectedAt: time.Now(),
		conn:        conn,
	}

	r.mu.Lock()
	r.byConn[conn.ID()] = vc
	r.mu.Unlock()
	return vc
}

// Upsert identifies publicKey and attaches conn to the resulting identity in
// one step. Signup does not use it: it calls Identify, sends the ack, and only
// then calls Attach, so a validator never receives an assignment before its
// ack. Upsert is for callers with no ack to order against.
func (r *Registry) Upsert(ctx context.Context, publicKey, ip string, conn *Conn) (*ledger.Validator, error) {
	v, err := r.Identify(ctx, publicKey, ip)
	if err != nil {
		return nil, err
	}
	r.Attach(conn, v)
	return v, nil
}

// Remove drops the entry for conn. Safe to call for connections that never registered.
func (r *Registry) Remove(conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[conn.ID()]; !ok {
		return false
	}
	delete(r.byConn, conn.ID())
	return true
}

// Lookup returns the registration bound to conn, if any.
func (r *Registry) Lookup(conn *Conn) (ValidatorConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vc, ok := r.byConn[conn.ID()]
	return vc, ok
}

// ListAvailable returns a snapshot of registered connections ordered by
// connection time. Entries removed before the call are never included.
func (r *Registry) ListAvailable() []ValidatorConnection {
	r.mu.RLock()
	out := make([]ValidatorConnection, 0, len(r.byConn))
	for _, vc := range r.byConn {
		out = append(out, vc)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].conn.ID() < out[j].conn.ID()
	})
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
