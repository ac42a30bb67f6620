// Package etcd connects the registry to an etcd cluster for the
// replicated store backend.
package etcd

import (
	"context"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/nerrad567/gray-logic-registry/internal/infrastructure/config"
)

const (
	defaultDialTimeout = 5 * time.Second
	healthCheckKey     = "health-check"
)

// ErrConnectionFailed indicates the cluster could not be reached.
var ErrConnectionFailed = errors.New("etcd: connection failed")

// Connect dials the cluster and verifies it with a read. The caller owns
// Close.
func Connect(ctx context.Context, cfg config.EtcdConfig) (*clientv3.Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("%w: endpoints cannot be empty", ErrConnectionFailed)
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: timeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Context:     ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := HealthCheck(ctx, cli, timeout); err != nil {
		cli.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return cli, nil
}

// HealthCheck performs a linearizable read against the cluster.
func HealthCheck(ctx context.Context, kv clientv3.KV, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := kv.Get(ctx, healthCheckKey); err != nil {
		return fmt.Errorf("etcd health check failed: %w", err)
	}
	return nil
}
