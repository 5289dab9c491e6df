package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/vigil/internal/config"
	"github.com/dyluth/vigil/internal/hub"
	"github.com/dyluth/vigil/internal/logging"
	"github.com/dyluth/vigil/pkg/ledger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vigil-hub",
	Short: "Vigil hub - dispatches uptime checks to connected validators",
	Long: `The hub accepts websocket connections from validators, authenticates
them by Ed25519 signature, fans out a check for every active target on a
fixed interval, and records each verified result with its payout credit.

Configuration is read from vigil.yml (or --config). REDIS_URL, POSTGRES_DSN,
IPGEO_API_KEY and VIGIL_INSTANCE_NAME override file values.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	Args:    cobra.NoArgs,
	RunE:    runHub,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to vigil.yml (defaults to ./vigil.yml when present)")
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if _, err := os.Stat(config.DefaultPath); err == nil {
		return config.DefaultPath
	}
	return ""
}

func runHub(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := ledger.Open(ctx, ledger.OpenOptions{
		Driver:       cfg.Store.Driver,
		InstanceName: cfg.Instance,
		RedisURL:     cfg.Store.RedisURL,
		PostgresDSN:  cfg.Store.PostgresDSN,
	})
	if err != nil {
		logger.Error("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return err
	}
	defer store.Close()

	if err := hub.New(cfg, store, nil, logger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("hub stopped with error", zap.Error(err))
		return err
	}

	logger.Info("hub stopped")
	return nil
}
