package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Supported store drivers.
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// OpenOptions selects and configures a ledger backend.
type OpenOptions struct {
	Driver       string
	InstanceName string // redis only
	RedisURL     string
	PostgresDSN  string
}

// Open connects to the configured backend and verifies connectivity.
func Open(ctx context.Context, opts OpenOptions) (Store, error) {
	switch opts.Driver {
	case DriverRedis, "":
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		store, err := NewRedisStore(redisOpts, opts.InstanceName)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis not accessible: %w", err)
		}
		return store, nil

	case DriverPostgres:
		return NewPostgresStore(ctx, opts.PostgresDSN)
	}

	return nil, fmt.Errorf("unknown store driver %q (expected %q or %q)", opts.Driver, DriverRedis, DriverPostgres)
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
