package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"storefront/internal/retry"
)

const dbPingTimeout = 10 * time.Second

// connectPolicy retries every connection error; Postgres often comes up after
// the api and worker containers.
func connectPolicy(attempts int, logger Logger) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		IsTransient: func(error) bool { return true },
		OnRetry: func(attempt int, err error, wait time.Duration) {
			logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("database not ready")
		},
	}
}

// NewDBPool opens the pgx pool used by the job store and waits until it
// answers a ping.
func NewDBPool(ctx context.Context, cfg *Config, logger Logger) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.DBMaxConns)
	}
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	return retry.Do(ctx, connectPolicy(cfg.DBConnectTries, logger), func(ctx context.Context) (*pgxpool.Pool, error) {
		pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
		defer cancel()
		pool, err := pgxpool.NewWithConfig(pingCtx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return pool, nil
	})
}

// OpenSQLDB opens a database/sql handle through lib/pq for goose.
func OpenSQLDB(ctx context.Context, databaseURL string, attempts int, logger Logger) (*sql.DB, error) {
	return retry.Do(ctx, connectPolicy(attempts, logger), func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return db, nil
	})
}
