package main

import (
	"context"
	"testing"
	"time"

	"github.com/dyluth/vigil/internal/agent"
	"github.com/dyluth/vigil/pkg/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdFlags(t *testing.T) {
	t.Run("defaults apply when no flag is given", func(t *testing.T) {
		v := agent.NewViper()
		cmd, err := newRootCmd(v)
		require.NoError(t, err)
		require.NoError(t, cmd.ParseFlags(nil))

		assert.Equal(t, "ws://localhost:8081", v.GetString(agent.KeyHubURL))
		assert.Equal(t, 10*time.Second, v.GetDuration(agent.KeyProbeTimeout))
		assert.Equal(t, "info", v.GetString(agent.KeyLogLevel))
	})

	t.Run("flags override defaults", func(t *testing.T) {
		v := agent.NewViper()
		cmd, err := newRootCmd(v)
		require.NoError(t, err)
		require.NoError(t, cmd.ParseFlags([]string{
			"--hub-url", "wss://hub.example:443",
			"--probe-timeout", "3s",
			"--log-format", "console",
		}))

		assert.Equal(t, "wss://hub.example:443", v.GetString(agent.KeyHubURL))
		assert.Equal(t, 3*time.Second, v.GetDuration(agent.KeyProbeTimeout))
		assert.Equal(t, "console", v.GetString(agent.KeyLogFormat))
	})

	t.Run("environment still applies when the flag is absent", func(t *testing.T) {
		kp, err := signing.GenerateKeyPair()
		require.NoError(t, err)
		t.Setenv("VALIDATOR_SECRET_KEY", kp.SecretJSON())
		t.Setenv("VIGIL_IP", "198.51.100.4")

		v := agent.NewViper()
		cmd, err := newRootCmd(v)
		require.NoError(t, err)
		require.NoError(t, cmd.ParseFlags(nil))

		cfg, err := agent.LoadConfig(v)
		require.NoError(t, err)
		assert.Equal(t, "198.51.100.4", cfg.IP)
		assert.Equal(t, kp.SecretJSON(), cfg.SecretKey)
	})

	t.Run("invalid configuration fails before connecting", func(t *testing.T) {
		t.Setenv("VIGIL_SECRET_KEY", "")
		t.Setenv("VALIDATOR_SECRET_KEY", "")

		cmd, err := newRootCmd(agent.NewViper())
		require.NoError(t, err)
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		cmd.SetArgs([]string{"--hub-url", "http://not-a-websocket"})

		err = cmd.ExecuteContext(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), agent.KeyHubURL)
	})
}
