package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS fuel_prices (
        id          BIGSERIAL PRIMARY KEY,
        fuel_type   TEXT NOT NULL,
        price       NUMERIC(10,3) NOT NULL,
        location    TEXT[] NOT NULL DEFAULT '{}',
        observed_at TIMESTAMPTZ NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS idx_fuel_prices_observed_at ON fuel_prices (observed_at);`,
	`CREATE INDEX IF NOT EXISTS idx_fuel_prices_type_observed_at ON fuel_prices (fuel_type, observed_at);`,
}

const (
	insertObservationSQL = `INSERT INTO fuel_prices (
        fuel_type,
        price,
        location,
        observed_at
    ) VALUES ($1,$2,$3,$4);`

	latestTimestampSQL = `SELECT MAX(observed_at) FROM fuel_prices;`

	listSinceSQL = `SELECT id, fuel_type, price, location, observed_at
    FROM fuel_prices
    WHERE observed_at >= $1
    ORDER BY observed_at, id;`

	listObservationsSQL = `SELECT id, fuel_type, price, location, observed_at
    FROM fuel_prices
    WHERE ($1 = '' OR fuel_type = $1)
      AND ($2::timestamptz IS NULL OR observed_at >= $2)
    ORDER BY observed_at, id;`

	countObservationsSQL = `SELECT COUNT(*) FROM fuel_prices;`

	resetObservationsSQL = `TRUNCATE fuel_prices RESTART IDENTITY;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresStore persists observations in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Migrate creates the fuel_prices table and its indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate fuel_prices: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock is dropped with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertObservations appends one scrape cycle in a single batch.
func (s *PostgresStore) InsertObservations(ctx context.Context, obs []Observation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(obs) == 0 {
		return nil
	}
	if err := validateAll(obs); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, o := range obs {
		batch.Queue(insertObservationSQL,
			o.FuelType,
			o.Price.StringFixed(3),
			cloneStations(o.Stations),
			o.Timestamp.UTC(),
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range obs {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert observation: %w", execErr)
		}
	}
	return nil
}

// LatestTimestamp returns the newest observation time, if any.
func (s *PostgresStore) LatestTimestamp(ctx context.Context) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}
	var latest *time.Time
	if scanErr := pool.QueryRow(ctx, latestTimestampSQL).Scan(&latest); scanErr != nil {
		return time.Time{}, false, fmt.Errorf("latest timestamp: %w", scanErr)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return latest.UTC(), true, nil
}

// ListSince lists observations at or after since.
func (s *PostgresStore) ListSince(ctx context.Context, since time.Time) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listSinceSQL, since.UTC())
	if queryErr != nil {
		return nil, fmt.Errorf("list observations since: %w", queryErr)
	}
	return collectObservations(rows)
}

// ListObservations lists every observation matching filter.
func (s *PostgresStore) ListObservations(ctx context.Context, filter Filter) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	var since *time.Time
	if !filter.Since.IsZero() {
		v := filter.Since.UTC()
		since = &v
	}
	rows, queryErr := pool.Query(ctx, listObservationsSQL, filter.FuelType, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations: %w", queryErr)
	}
	return collectObservations(rows)
}

// CountObservations counts stored observations.
func (s *PostgresStore) CountObservations(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

// Reset truncates the observation log.
func (s *PostgresStore) Reset(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, resetObservationsSQL); execErr != nil {
		return fmt.Errorf("reset observations: %w", execErr)
	}
	return nil
}

func collectObservations(rows pgx.Rows) ([]Observation, error) {
	defer rows.Close()

	observations := make([]Observation, 0)
	for rows.Next() {
		var (
			o        Observation
			priceStr string
			stations []string
		)
		if err := rows.Scan(&o.ID, &o.FuelType, &priceStr, &stations, &o.Timestamp); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		o.Price = price
		o.Stations = cloneStations(stations)
		o.Timestamp = o.Timestamp.UTC()
		observations = append(observations, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

var (
	_ ObservationStore = (*PostgresStore)(nil)
	_ AdvisoryLocker   = (*PostgresStore)(nil)
)
