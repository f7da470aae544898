// Package db opens pgx pools with the pool sizing conventions shared
// by all services.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/learning-platform/internal/platform/config"
)

// Pool sizing defaults, overridable via DB_MAX_CONNS, DB_MIN_CONNS and
// DB_MAX_CONN_IDLE.
const (
	defaultMaxConns    = 10
	defaultMinConns    = 1
	defaultMaxConnIdle = 5 * time.Minute
)

// Open opens a pgxpool for the given DSN and verifies connectivity
// with a bounded ping.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = int32(config.GetenvInt("DB_MAX_CONNS", defaultMaxConns))
	cfg.MinConns = int32(config.GetenvInt("DB_MIN_CONNS", defaultMinConns))
	cfg.MaxConnIdleTime = config.GetenvDuration("DB_MAX_CONN_IDLE", defaultMaxConnIdle)
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
