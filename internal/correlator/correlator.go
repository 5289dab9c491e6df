// Package correlator pairs asynchronous requests with their replies.
//
// A requester registers a continuation under a locally generated callback id
// and sends the id along with its request. When a reply carrying the same id
// arrives, Resolve removes the entry and runs the continuation exactly once.
// Entries that never see a reply expire at their deadline and are removed by
// Sweep, so a silent or disconnected peer cannot leak entries forever.
package correlator

import (
	"context"
	"sync"
	"time"
)

// Continuation is invoked with the reply payload when a callback resolves.
type Continuation[T any] func(payload T)

// Guard decides whether a payload may resolve an entry. A rejected payload
// leaves the entry pending.
type Guard[T any] func(payload T) bool

// ExpiryFunc is notified for every entry removed by Sweep.
type ExpiryFunc func(callbackID, owner string)

type entry[T any] struct {
	owner    string
	deadline time.Time
	guard    Guard[T]
	cont     Continuation[T]
}

// Correlator is a mutex-protected table of pending callbacks.
// It is safe for concurrent use.
type Correlator[T any] struct {
	mu       sync.Mutex
	pending  map[string]*entry[T]
	ttl      time.Duration
	onExpire ExpiryFunc
	now      func() time.Time
}

// Option configures a Correlator.
type Option func(*options)

type options struct {
	onExpire ExpiryFunc
	now      func() time.Time
}

// WithExpiryHook registers a function called for each expired entry.
func WithExpiryHook(fn ExpiryFunc) Option {
	return func(o *options) { o.onExpire = fn }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a correlator whose entries expire ttl after registration.
// A zero ttl disables expiry.
func New[T any](ttl time.Duration, opts ...Option) *Correlator[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Correlator[T]{
		pending:  make(map[string]*entry[T]),
		ttl:      ttl,
		onExpire: o.onExpire,
		now:      o.now,
	}
}

// Register stores cont under callbackID. owner tags the entry so that all of
// a peer's outstanding callbacks can be dropped together (see DiscardOwner).
// Registering an id that is already pending replaces the earlier entry.
func (c *Correlator[T]) Register(callbackID, owner string, cont Continuation[T]) {
	c.RegisterGuarded(callbackID, owner, nil, cont)
}

// RegisterGuarded is Register with a guard that every resolving payload must
// pass. The guard runs outside the lock and may be called concurrently.
func (c *Correlator[T]) RegisterGuarded(callbackID, owner string, guard Guard[T], cont Continuation[T]) {
	e := &entry[T]{owner: owner, guard: guard, cont: cont}
	if c.ttl > 0 {
		e.deadline = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	c.pending[callbackID] = e
	c.mu.Unlock()
}

// Resolve removes the entry for callbackID and runs its continuation with
// payload. Returns false if no entry was pending or its guard rejected the
// payload; a second Resolve for the same id is therefore a no-op.
func (c *Correlator[T]) Resolve(callbackID string, payload T) bool {
	return c.resolve(callbackID, payload, func(*entry[T]) bool { return true })
}

// ResolveFor is Resolve restricted to entries registered by owner. A reply
// that arrives from a different owner leaves the entry pending.
func (c *Correlator[T]) ResolveFor(owner, callbackID string, payload T) bool {
	return c.resolve(callbackID, payload, func(e *entry[T]) bool { return e.owner == owner })
}

func (c *Correlator[T]) resolve(callbackID string, payload T, match func(*entry[T]) bool) bool {
	c.mu.Lock()
	e, ok := c.pending[callbackID]
	c.mu.Unlock()
	if !ok || !match(e) {
		return false
	}

	if e.guard != nil && !e.guard(payload) {
		return false
	}

	// only the caller that removes this exact entry runs it
	c.mu.Lock()
	if c.pending[callbackID] != e {
		c.mu.Unlock()
		return false
	}
	delete(c.pending, callbackID)
	c.mu.Unlock()

	// run outside the lock: continuations may block on I/O
	e.cont(payload)
	return true
}

// Discard drops the entry for callbackID without running it.
// Returns true if an entry was removed.
func (c *Correlator[T]) Discard(callbackID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[callbackID]; !ok {
		return false
	}
	delete(c.pending, callbackID)
	return true
}

// DiscardOwner drops every entry registered by owner and returns how many were removed.
func (c *Correlator[T]) DiscardOwner(owner string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, e := range c.pending {
		if e.owner == owner {
			delete(c.pending, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of pending entries.
func (c *Correlator[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Pending reports whether callbackID is still awaiting a reply.
func (c *Correlator[T]) Pending(callbackID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[callbackID]
	return ok
}

// Sweep removes all entries whose deadline has passed and returns how many were removed.
func (c *Correlator[T]) Sweep() int {
	now := c.now()

	type expired struct{ id, owner string }
	var gone []expired

	c.mu.Lock()
	for id, e := range c.pending {
		if !e.deadline.IsZero() && now.After(e.deadline) {
			delete(c.pending, id)
			gone = append(gone, expired{id: id, owner: e.owner})
		}
	}
	c.mu.Unlock()

	if c.onExpire != nil {
		for _, g := range gone {
			c.onExpire(g.id, g.owner)
		}
	}
	return len(gone)
}

// RunReaper calls Sweep every interval until ctx is cancelled.
func (c *Correlator[T]) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
