package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/vigil/internal/config"
	"github.com/dyluth/vigil/internal/printer"
	"github.com/dyluth/vigil/pkg/ledger"
)

// loadHubConfig reads the same configuration the hub runs with.
func loadHubConfig() (*config.HubConfig, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, printer.Error(
			"invalid hub configuration",
			err.Error(),
			[]string{"Fix vigil.yml or point at another file with --config"},
		)
	}
	return cfg, nil
}

// openStore connects to the hub's ledger.
func openStore(ctx context.Context) (ledger.Store, *config.HubConfig, error) {
	cfg, err := loadHubConfig()
	if err != nil {
		return nil, nil, err
	}

	store, err := ledger.Open(ctx, ledger.OpenOptions{
		Driver:       cfg.Store.Driver,
		InstanceName: cfg.Instance,
		RedisURL:     cfg.Store.RedisURL,
		PostgresDSN:  cfg.Store.PostgresDSN,
	})
	if err != nil {
		return nil, nil, printer.ErrorWithContext(
			"store connection failed",
			fmt.Sprintf("Could not open the %s ledger.", cfg.Store.Driver),
			map[string]string{
				"Instance": cfg.Instance,
				"Error":    err.Error(),
			},
			[]string{
				"Check that the store is running and reachable",
				"Override the address with REDIS_URL or POSTGRES_DSN",
			},
		)
	}
	return store, cfg, nil
}
