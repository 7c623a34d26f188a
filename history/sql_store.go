package history

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/liamcoop/rulespec/rules"
)

// Dialect selects placeholder syntax and driver name
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind rewrites $n placeholders for dialects that use ?
func (d Dialect) rebind(query string) string {
	if d == SQLite {
		return placeholder.ReplaceAllString(query, "?")
	}
	return query
}

// SQLStore implements Store on database/sql. Timestamps are stored as unix
// nanoseconds so both dialects compare them numerically.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// OpenSQLStore opens a database for dialect and pings it
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLStore(db, dialect), nil
}

// DB returns the underlying handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the samples table if it does not exist
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS samples (series_key TEXT NOT NULL, recorded_at BIGINT NOT NULL, value DOUBLE PRECISION NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS samples_series_time ON samples (series_key, recorded_at)`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create samples schema: %w", err)
		}
	}
	return nil
}

// Record inserts a sample
func (s *SQLStore) Record(ctx context.Context, key string, sample Sample) error {
	if key == "" {
		return fmt.Errorf("series key is required")
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO samples (series_key, recorded_at, value)
		VALUES ($1, $2, $3)
	`), key, sample.Time.UnixNano(), sample.Value)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// Series queries the window in SQL, oldest first
func (s *SQLStore) Series(ctx context.Context, key string, window rules.AnalysisWindow, now time.Time) ([]Sample, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch window.Kind() {
	case rules.WindowLastN:
		rows, err = s.db.QueryContext(ctx, s.dialect.rebind(`
			SELECT recorded_at, value FROM samples
			WHERE series_key = $1
			ORDER BY recorded_at DESC
			LIMIT $2
		`), key, window.Count())
	case rules.WindowTimeRange:
		rows, err = s.db.QueryContext(ctx, s.dialect.rebind(`
			SELECT recorded_at, value FROM samples
			WHERE series_key = $1 AND recorded_at >= $2
			ORDER BY recorded_at ASC
		`), key, now.Add(-window.Interval()).UnixNano())
	default:
		rows, err = s.db.QueryContext(ctx, s.dialect.rebind(`
			SELECT recorded_at, value FROM samples
			WHERE series_key = $1
			ORDER BY recorded_at ASC
		`), key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			ns    int64
			value float64
		)
		if err := rows.Scan(&ns, &value); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		out = append(out, Sample{Time: time.Unix(0, ns).UTC(), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}

	if window.Kind() == rules.WindowLastN {
		slices.Reverse(out)
	}
	return out, nil
}

// Keys lists series keys
func (s *SQLStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT series_key FROM samples ORDER BY series_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan series key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Delete removes every sample of key
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM samples WHERE series_key = $1`), key)
	if err != nil {
		return fmt.Errorf("failed to delete series: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("series %s: %w", key, ErrNotFound)
	}
	return nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}
