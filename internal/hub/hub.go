// Package hub coordinates validators: it authenticates their connections,
// fans out uptime checks on a fixed interval, and records verified results
// with their payout credit in the ledger.
package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dyluth/vigil/internal/config"
	"github.com/dyluth/vigil/internal/logging"
	"github.com/dyluth/vigil/pkg/ledger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Hub owns the coordinator, its scheduler and reaper, and the HTTP server.
type Hub struct {
	cfg     *config.HubConfig
	coord   *Coordinator
	metrics *Metrics
	server  *http.Server
	logger  *zap.Logger
}

// New builds a hub from configuration. A nil locator is derived from cfg.Geo.
func New(cfg *config.HubConfig, store ledger.Store, locator Locator, logger *zap.Logger) *Hub {
	if locator == nil {
		locator = NewLocator(cfg.Geo)
	}

	metrics := NewMetrics()
	registry := NewRegistry(store, locator, logger)
	coord := NewCoordinator(store, registry, Options{
		InstanceName:      cfg.Instance,
		CostPerValidation: cfg.Payout.CostPerValidation,
		AssignmentTimeout: cfg.Dispatch.AssignmentTimeout,
		SendBuffer:        cfg.Dispatch.SendBuffer,
	}, metrics, logger)

	return &Hub{
		cfg:     cfg,
		coord:   coord,
		metrics: metrics,
		server: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           NewRouter(coord, store, metrics),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("hub"),
	}
}

// NewLocator returns an ipgeolocation.io locator, or a NopLocator when no API key is set.
func NewLocator(cfg config.GeoConfig) Locator {
	if cfg.APIKey == "" {
		return NopLocator{}
	}
	return NewIPGeoLocator(cfg.Endpoint, cfg.APIKey, cfg.Timeout)
}

// Coordinator exposes the hub's coordinator.
func (h *Hub) Coordinator() *Coordinator {
	return h.coord
}

// Handler returns the hub's HTTP handler.
func (h *Hub) Handler() http.Handler {
	return h.server.Handler
}

// Run serves validators and dispatches checks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	logging.Event(h.logger, "hub_started",
		zap.String("instance", h.cfg.Instance),
		zap.String("listen_addr", h.cfg.ListenAddr),
		zap.Duration("interval", h.cfg.Dispatch.Interval))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		h.logger.Info("shutting down")
		h.coord.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return h.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return h.coord.RunScheduler(gctx, h.cfg.Dispatch.Interval)
	})

	g.Go(func() error {
		return h.coord.RunReaper(gctx, h.cfg.Dispatch.SweepInterval)
	})

	return g.Wait()
}
