// Package redis connects the registry to Redis, used both as a store
// backend and as an event fan-out channel.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-registry/internal/infrastructure/config"
)

const defaultConnectTimeout = 5 * time.Second

// ErrConnectionFailed indicates the initial ping did not succeed.
var ErrConnectionFailed = errors.New("redis: connection failed")

// Connect parses cfg.URL, applies the connect timeout to dialing and the
// initial ping, and returns a ready client. The caller owns Close.
func Connect(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is empty", ErrConnectionFailed)
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing url: %w", ErrConnectionFailed, err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts.DialTimeout = timeout

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return client, nil
}

// HealthCheck pings the server.
func HealthCheck(ctx context.Context, client goredis.UniversalClient) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
