package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fuel-price-tracker/internal/config"
)

// ErrNotConfigured indicates the storage backend was not initialised.
var ErrNotConfigured = errors.New("storage: backend not configured")

// ObservationStore is the append-only, time-ordered observation log.
// List methods return rows ascending by timestamp.
type ObservationStore interface {
	InsertObservations(ctx context.Context, obs []Observation) error
	LatestTimestamp(ctx context.Context) (time.Time, bool, error)
	ListSince(ctx context.Context, since time.Time) ([]Observation, error)
	ListObservations(ctx context.Context, filter Filter) ([]Observation, error)
	CountObservations(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
	Close()
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Open selects the store implementation named by cfg.Driver and prepares its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (ObservationStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.DSN)
	case config.DriverMemory:
		return NewMemoryStore(cfg.MemoryMaxRows), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
