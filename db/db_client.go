// Package db opens the PostgreSQL pool and applies schema migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vinetrail/vinetrail-backend/config"
	"github.com/vinetrail/vinetrail-backend/logger"
)

const (
	defaultMaxRetries = 5
	defaultRetryDelay = time.Second
)

// Connector opens a pool, retrying while the database is still starting up.
type Connector struct {
	maxRetries int
	retryDelay time.Duration
}

// NewConnector returns a connector with the default retry policy.
func NewConnector() *Connector {
	return &Connector{maxRetries: defaultMaxRetries, retryDelay: defaultRetryDelay}
}

// Connect builds the pool from cfg and pings it. The delay doubles after
// each failed attempt.
func (c *Connector) Connect(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	log := logger.GetLogger()

	poolConfig, err := config.ConfigurePostgresPool(cfg)
	if err != nil {
		return nil, err
	}

	delay := c.retryDelay
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				log.Infow("Connected to database", "host", cfg.Host, "database", cfg.Name, "attempt", attempt)
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		log.Warnw("Database connection attempt failed", "attempt", attempt, "maxRetries", c.maxRetries, "error", err)

		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", c.maxRetries, lastErr)
}
