// Package db manages the pgx PostgreSQL connection pool.
//
// DB implements the schema scan and read-only query execution the agent
// pipeline runs against. SSH tunnel integration is handled transparently:
// if SSH is enabled, the tunnel is established first and pgx connects to
// the local endpoint.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DachengChen/paiask/config"
	"github.com/DachengChen/paiask/ssh"
	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pingTries   = 4
	pingTimeout = 20 * time.Second
)

// DB wraps a pgx connection pool and optional SSH tunnel.
type DB struct {
	Pool   *pgxpool.Pool
	Tunnel *ssh.Tunnel

	log *slog.Logger
}

// Connect establishes a PostgreSQL connection, optionally through an SSH tunnel.
// The first ping is retried with exponential backoff.
func Connect(ctx context.Context, log *slog.Logger, cfg config.Config) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &DB{log: log}

	if cfg.SSH.Enabled {
		tunnel, err := ssh.NewTunnel(log, cfg.SSH, cfg.Host, cfg.Port)
		if err != nil {
			return nil, fmt.Errorf("ssh tunnel: %w", err)
		}
		localAddr, err := tunnel.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("ssh tunnel start: %w", err)
		}
		d.Tunnel = tunnel

		// Override connection target with local tunnel endpoint
		cfg.Host = localAddr.Host
		cfg.Port = localAddr.Port
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("pgx connect: %w", err)
	}
	d.Pool = pool

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(pingTries),
		backoff.WithMaxElapsedTime(pingTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("database ping failed, retrying", "target", cfg.Redacted(), "error", err, "next", next)
		}),
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}

	log.Info("connected", "target", cfg.Redacted(), "tunnel", d.Tunnel != nil)
	return d, nil
}

// Close shuts down the pool and SSH tunnel.
func (d *DB) Close() {
	if d.Pool != nil {
		d.Pool.Close()
	}
	if d.Tunnel != nil {
		d.Tunnel.Stop()
	}
}
