package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS          = 5000
	defaultMaxOpenConns    = 1
	defaultMaxIdleConns    = 1
	defaultConnMaxLifetime = 5 * time.Minute

	maxOpenConnsEnvKey    = "SITREP_DB_MAX_OPEN_CONNS"
	connMaxLifetimeEnvKey = "SITREP_DB_CONN_MAX_LIFETIME"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Info summarizes store contents.
type Info struct {
	SchemaVersion int            `json:"schema_version"`
	StatusCounts  map[string]int `json:"status_counts"`
	TotalReports  int            `json:"total_reports"`
}

// Open opens the SQLite database and applies pending migrations.
func Open(path string) (*Store, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StoreInfo returns schema version and report counts by status.
func (s *Store) StoreInfo(ctx context.Context) (Info, error) {
	info := Info{StatusCounts: map[string]int{}}

	version, err := appliedVersion(s.db)
	if err != nil {
		return info, err
	}
	info.SchemaVersion = version

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM reports GROUP BY status")
	if err != nil {
		return info, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return info, err
		}
		info.StatusCounts[status] = count
		info.TotalReports += count
	}
	return info, rows.Err()
}

// poolSettings bounds the database/sql pool. SQLite serialises writers, so
// one connection is the default.
type poolSettings struct {
	maxOpenConns    int
	connMaxLifetime time.Duration
}

func poolSettingsFromEnv() poolSettings {
	settings := poolSettings{maxOpenConns: defaultMaxOpenConns, connMaxLifetime: defaultConnMaxLifetime}
	if raw := strings.TrimSpace(os.Getenv(maxOpenConnsEnvKey)); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			settings.maxOpenConns = n
		}
	}
	if raw := strings.TrimSpace(os.Getenv(connMaxLifetimeEnvKey)); raw != "" {
		if d, ok := parseLifetime(raw); ok {
			settings.connMaxLifetime = d
		}
	}
	return settings
}

// parseLifetime accepts a Go duration or a bare number of seconds.
func parseLifetime(raw string) (time.Duration, bool) {
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, seconds > 0
	}
	d, err := time.ParseDuration(raw)
	return d, err == nil && d > 0
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", strings.TrimSuffix(stmt, ";"), err)
		}
	}

	settings := poolSettingsFromEnv()
	db.SetMaxOpenConns(settings.maxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(settings.connMaxLifetime)
	return nil
}

func sqliteDSN(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

// MigrationStatus reports the schema version of the open database.
func (s *Store) MigrationStatus() (*MigrationStatus, error) {
	return MigrationPlan(s.db)
}
