package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// TickSubscription is an active Pub/Sub subscription to committed ticks.
// Caller must call Close() when done.
type TickSubscription struct {
	events <-chan *Tick
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of committed ticks.
// It is closed when the subscription is closed or the context is cancelled.
func (s *TickSubscription) Events() <-chan *Tick {
	return s.events
}

// Errors returns non-fatal subscription errors such as undecodable payloads.
// The subscription keeps running after an error.
func (s *TickSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *TickSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeTickEvents subscribes to ticks committed on this instance.
// Delivery is at-most-once; a slow subscriber may miss events.
func (s *RedisStore) SubscribeTickEvents(ctx context.Context) (*TickSubscription, error) {
	pubsub := s.rdb.Subscribe(ctx, TickEventsChannel(s.instanceName))

	// wait for the subscription to be confirmed so no event published after
	// this call returns can be missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to tick events: %w", err)
	}

	eventsChan := make(chan *Tick, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var tick Tick
				if err := json.Unmarshal([]byte(msg.Payload), &tick); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal tick event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &tick:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &TickSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
