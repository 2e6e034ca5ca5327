// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, creates the schema, and applies idempotent migrations

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			display_name TEXT NOT NULL,
			phone_number TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			system_prompt TEXT,
			greeting TEXT,
			capabilities TEXT,
			tier TEXT NOT NULL DEFAULT 'standard',
			max_per_minute INTEGER NOT NULL DEFAULT 0,
			max_per_hour INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,

			CHECK (status IN ('active', 'inactive'))
		);

		CREATE INDEX IF NOT EXISTS idx_agents_tenant ON agents(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);

		CREATE TABLE IF NOT EXISTS sender_identities (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			phone_number TEXT NOT NULL,
			country_code TEXT NOT NULL,
			capabilities TEXT NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL,

			UNIQUE(tenant_id, phone_number),
			CHECK (status IN ('active', 'inactive'))
		);

		CREATE INDEX IF NOT EXISTS idx_identities_tenant ON sender_identities(tenant_id);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			direction TEXT NOT NULL,
			from_addr TEXT NOT NULL,
			to_addr TEXT NOT NULL,
			body TEXT,
			external_id TEXT,
			status TEXT NOT NULL,
			cost REAL,
			created_at TEXT NOT NULL,

			CHECK (direction IN ('inbound', 'outbound'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_agent_created ON messages(agent_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_tenant ON messages(tenant_id);

		CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			correlation_id TEXT,
			kind TEXT NOT NULL,
			caller TEXT,
			transcript TEXT,
			recording_url TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			dispatched_at TEXT,

			CHECK (kind IN ('voicemail', 'missed_call', 'inbound_message')),
			CHECK (status IN ('pending', 'dispatched'))
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_agent_status ON notifications(agent_id, status);

		CREATE TABLE IF NOT EXISTS waiting_messages (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			from_addr TEXT NOT NULL,
			body TEXT,
			external_id TEXT,
			created_at TEXT NOT NULL,
			claimed_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_waiting_agent ON waiting_messages(agent_id, claimed_at);

		CREATE TABLE IF NOT EXISTS tokens (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			token_hash TEXT NOT NULL,
			label TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL,
			last_used_at TEXT,

			CHECK (status IN ('active', 'revoked'))
		);

		CREATE INDEX IF NOT EXISTS idx_tokens_agent ON tokens(agent_id);

		CREATE TABLE IF NOT EXISTS usage_events (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			action TEXT NOT NULL,
			channel TEXT,
			cost REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_agent_created ON usage_events(agent_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_usage_tenant_created ON usage_events(tenant_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		table  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('agents') WHERE name = 'greeting'`,
			apply:  `ALTER TABLE agents ADD COLUMN greeting TEXT`,
			table:  "agents",
			column: "greeting",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('agents') WHERE name = 'tier'`,
			apply:  `ALTER TABLE agents ADD COLUMN tier TEXT NOT NULL DEFAULT 'standard'`,
			table:  "agents",
			column: "tier",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('notifications') WHERE name = 'recording_url'`,
			apply:  `ALTER TABLE notifications ADD COLUMN recording_url TEXT`,
			table:  "notifications",
			column: "recording_url",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string value
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime returns nil for a nil time, otherwise the RFC3339 string
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses an RFC3339 timestamp column
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return t, nil
}

// parseNullTime parses an optional RFC3339 timestamp column
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Ensure SQLiteStore implements the Store interface.
var _ Store = (*SQLiteStore)(nil)
