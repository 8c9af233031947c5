package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// migrateSchema brings the schema up to date. PostgreSQL runs the
// embedded golang-migrate files so production upgrades are versioned;
// SQLite applies idempotent DDL directly.
func migrateSchema(ctx context.Context, db *sql.DB, isPostgres bool) error {
	if isPostgres {
		return runPostgresMigrations(db)
	}
	return createSQLiteTables(ctx, db)
}

func runPostgresMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "conclave", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the source driver. m.Close() would also close the
	// database driver, and with it the shared *sql.DB.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}

func createSQLiteTables(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		council_id TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		source_event_id TEXT NOT NULL DEFAULT '',
		lead_agent_id TEXT NOT NULL DEFAULT '',
		consult_agent_ids TEXT NOT NULL DEFAULT '[]',
		phase TEXT NOT NULL,
		deliberation_round INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		terminal_at TEXT
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		session_id TEXT NOT NULL,
		from_agent_id TEXT NOT NULL,
		to_agent_id TEXT NOT NULL DEFAULT '',
		message_type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS votes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		session_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		value TEXT NOT NULL,
		reasoning TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE (session_id, agent_id)
	);

	CREATE TABLE IF NOT EXISTS decisions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		session_id TEXT UNIQUE NOT NULL,
		outcome TEXT NOT NULL,
		tally TEXT NOT NULL DEFAULT '{}',
		human_reviewed_by TEXT NOT NULL DEFAULT '',
		human_notes TEXT NOT NULL DEFAULT '',
		veto_exercised BOOLEAN NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		finalized_at TEXT
	);

	CREATE TABLE IF NOT EXISTS webhook_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		council_id TEXT NOT NULL,
		source TEXT NOT NULL,
		event_type TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '{}',
		received_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_tokens (
		agent_id TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_council ON sessions(council_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_phase ON sessions(phase);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_votes_session ON votes(session_id);
	CREATE INDEX IF NOT EXISTS idx_decisions_pending ON decisions(finalized_at);
	CREATE INDEX IF NOT EXISTS idx_events_council ON webhook_events(council_id);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create sqlite tables: %w", err)
	}
	return nil
}
