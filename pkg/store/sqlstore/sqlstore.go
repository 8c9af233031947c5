// Package sqlstore is the SQL store backend. The DSN picks the engine:
// postgres:// or postgresql:// prefixes select PostgreSQL via pgx, any
// other value is treated as a SQLite file path.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx"
	_ "modernc.org/sqlite"             // database/sql driver "sqlite"

	"github.com/conclave-hq/conclave/pkg/store"
)

// Config holds connection settings for the SQL store.
type Config struct {
	DSN string

	// Connection pool settings; zero values fall back to defaults.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// Store implements store.Interface on top of database/sql.
type Store struct {
	db         *sql.DB
	isPostgres bool
	logger     *slog.Logger
}

var _ store.Interface = (*Store)(nil)

// Open connects to the database named by cfg.DSN, configures the pool
// and brings the schema up to date.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "conclave.db"
	}
	isPostgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")

	var db *sql.DB
	var err error
	if isPostgres {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
	} else {
		// SQLite: make sure the directory exists.
		dir := filepath.Dir(dsn)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	db.SetMaxOpenConns(valueOr(cfg.MaxOpenConns, defaultMaxOpenConns))
	db.SetMaxIdleConns(valueOr(cfg.MaxIdleConns, defaultMaxIdleConns))
	db.SetConnMaxLifetime(durationOr(cfg.ConnMaxLifetime, defaultConnMaxLifetime))
	db.SetConnMaxIdleTime(durationOr(cfg.ConnMaxIdleTime, defaultConnMaxIdleTime))

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrateSchema(ctx, db, isPostgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{
		db:         db,
		isPostgres: isPostgres,
		logger:     slog.Default().With("component", "sqlstore"),
	}
	s.logger.Info("Database ready", "backend", s.backend())
	return s, nil
}

func (s *Store) backend() string {
	if s.isPostgres {
		return "postgres"
	}
	return "sqlite"
}

// DB exposes the raw handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into $N when running on PostgreSQL.
func (s *Store) rebind(query string) string {
	if !s.isPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func valueOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

// Timestamps are stored as RFC3339Nano UTC text on both backends so the
// scan path is identical.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json column: %w", err)
	}
	return string(data), nil
}
