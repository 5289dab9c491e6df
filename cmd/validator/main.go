package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/vigil/internal/agent"
	"github.com/dyluth/vigil/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version information - set during build
var version = "dev"

func newRootCmd(v *viper.Viper) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "vigil-validator",
		Short: "Vigil validator - performs uptime checks assigned by a hub",
		Long: `The validator connects to a hub, proves its identity by signing a
challenge with its Ed25519 key, and answers every assigned check with a
signed up/down result and latency. It reconnects with backoff when the
connection drops.

Every flag can also be set as an environment variable with the VIGIL_
prefix (VIGIL_HUB_URL, VIGIL_SECRET_KEY, ...). VALIDATOR_SECRET_KEY is
accepted for the secret key.`,
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidator(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("hub-url", "", "Hub websocket URL (default ws://localhost:8081)")
	flags.String("secret-key", "", "Ed25519 secret key as a JSON byte array or base58")
	flags.String("ip", "", "Address advertised to the hub")
	flags.Duration("probe-timeout", 0, "Timeout for a single HTTP check (default 10s)")
	flags.Duration("signup-timeout", 0, "Time to wait for the signup acknowledgement (default 30s)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: json or console")

	bindings := map[string]string{
		agent.KeyHubURL:        "hub-url",
		agent.KeySecretKey:     "secret-key",
		agent.KeyIP:            "ip",
		agent.KeyProbeTimeout:  "probe-timeout",
		agent.KeySignupTimeout: "signup-timeout",
		agent.KeyLogLevel:      "log-level",
		agent.KeyLogFormat:     "log-format",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("failed to bind flag --%s: %w", flag, err)
		}
	}

	return cmd, nil
}

func runValidator(ctx context.Context, v *viper.Viper) error {
	cfg, err := agent.LoadConfig(v)
	if err != nil {
		return err
	}

	keys, err := cfg.KeyPair()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	return agent.New(cfg, keys, logger).Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, err := newRootCmd(agent.NewViper())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cmd.SilenceUsage = true
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
