package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/vigil/internal/logging"
	"go.uber.org/zap"
)

// DispatchOnce sends every active target to every available validator.
// It returns the number of assignments queued and does not wait for replies.
func (c *Coordinator) DispatchOnce(ctx context.Context) (int, error) {
	start := time.Now()

	targets, err := c.store.ListActiveTargets(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active targets: %w", err)
	}
	validators := c.registry.ListAvailable()

	sent, failed := 0, 0
	for _, target := range targets {
		for _, vc := range validators {
			if err := c.dispatch(target, vc); err != nil {
				failed++
				c.logger.Warn("failed to queue assignment",
					zap.String("validator_id", vc.ValidatorID),
					zap.String("conn_id", vc.conn.ID()),
					zap.String("target_id", target.ID),
					zap.Error(err))
				continue
			}
			sent++
		}
	}

	c.metrics.dispatched.Add(float64(sent))
	c.metrics.dispatchFailures.Add(float64(failed))
	c.metrics.dispatchDuration.Observe(time.Since(start).Seconds())

	logging.Event(c.logger, "dispatch_completed",
		zap.Int("targets", len(targets)),
		zap.Int("validators", len(validators)),
		zap.Int("sent", sent),
		zap.Int("failed", failed))
	return sent, nil
}

// RunScheduler calls DispatchOnce every interval until ctx is cancelled.
// A failed round is logged and the next tick tries again.
func (c *Coordinator) RunScheduler(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("dispatch round failed", zap.Error(err))
			}
		}
	}
}

// RunReaper sweeps expired assignments every interval until ctx is cancelled.
func (c *Coordinator) RunReaper(ctx context.Context, interval time.Duration) error {
	c.pending.RunReaper(ctx, interval)
	return nil
}
