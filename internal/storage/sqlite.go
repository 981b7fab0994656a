package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const (
	// Fixed-width UTC layout so lexical order equals time order.
	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"
	stationSeparator = " | "
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fuel_prices (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    fuel_type   TEXT NOT NULL,
    price       TEXT NOT NULL,
    location    TEXT NOT NULL DEFAULT '',
    observed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fuel_prices_observed_at ON fuel_prices(observed_at);
CREATE INDEX IF NOT EXISTS idx_fuel_prices_type_observed_at ON fuel_prices(fuel_type, observed_at);
`

// SQLiteStore persists observations in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
// Use ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// InsertObservations appends one scrape cycle inside a transaction.
func (s *SQLiteStore) InsertObservations(ctx context.Context, obs []Observation) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if len(obs) == 0 {
		return nil
	}
	if err := validateAll(obs); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO fuel_prices (fuel_type, price, location, observed_at) VALUES (?,?,?,?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx,
			o.FuelType,
			o.Price.StringFixed(3),
			strings.Join(o.Stations, stationSeparator),
			formatSQLiteTime(o.Timestamp),
		); err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// LatestTimestamp returns the newest observation time, if any.
func (s *SQLiteStore) LatestTimestamp(ctx context.Context) (time.Time, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return time.Time{}, false, err
	}
	var latest sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT MAX(observed_at) FROM fuel_prices").Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("latest timestamp: %w", err)
	}
	if !latest.Valid || latest.String == "" {
		return time.Time{}, false, nil
	}
	ts, err := parseSQLiteTime(latest.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

// ListSince lists observations at or after since.
func (s *SQLiteStore) ListSince(ctx context.Context, since time.Time) ([]Observation, error) {
	return s.ListObservations(ctx, Filter{Since: since})
}

// ListObservations lists every observation matching filter.
func (s *SQLiteStore) ListObservations(ctx context.Context, filter Filter) ([]Observation, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	query := "SELECT id, fuel_type, price, location, observed_at FROM fuel_prices"
	var (
		clauses []string
		args    []any
	)
	if filter.FuelType != "" {
		clauses = append(clauses, "fuel_type = ?")
		args = append(args, filter.FuelType)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "observed_at >= ?")
		args = append(args, formatSQLiteTime(filter.Since))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY observed_at, id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	observations := make([]Observation, 0)
	for rows.Next() {
		var (
			o                          Observation
			priceStr, location, tsText string
		)
		if err := rows.Scan(&o.ID, &o.FuelType, &priceStr, &location, &tsText); err != nil {
			return nil, err
		}
		if o.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if o.Timestamp, err = parseSQLiteTime(tsText); err != nil {
			return nil, err
		}
		o.Stations = splitStations(location)
		observations = append(observations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return observations, nil
}

// CountObservations counts stored observations.
func (s *SQLiteStore) CountObservations(ctx context.Context) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fuel_prices").Scan(&count); err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return count, nil
}

// Reset deletes every observation.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM fuel_prices"); err != nil {
		return fmt.Errorf("reset observations: %w", err)
	}
	return nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(v string) (time.Time, error) {
	ts, err := time.Parse(sqliteTimeLayout, v)
	if err != nil {
		// rows written by other tools may use plain RFC3339
		ts, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse observed_at %q: %w", v, err)
		}
	}
	return ts.UTC(), nil
}

func splitStations(v string) []string {
	stations := []string{}
	for _, part := range strings.Split(v, "|") {
		if p := strings.TrimSpace(part); p != "" {
			stations = append(stations, p)
		}
	}
	return stations
}

var _ ObservationStore = (*SQLiteStore)(nil)
