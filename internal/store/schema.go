// Package store provides SQLite-backed persistence for journeys and their routes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type migration struct {
	id  string
	sql string
}

// migrations are applied in order and never edited once released.
var migrations = []migration{
	{
		id: "20230514_initialise",
		sql: `
CREATE TABLE journeys (
	id           TEXT PRIMARY KEY,
	from_station TEXT NOT NULL COLLATE NOCASE,
	to_station   TEXT NOT NULL COLLATE NOCASE,
	via          TEXT,
	distance     REAL NOT NULL DEFAULT 0,
	date         TEXT NOT NULL
);

CREATE TABLE routes (
	journey_id TEXT NOT NULL,
	sequence   INTEGER NOT NULL,
	station    TEXT NOT NULL,
	PRIMARY KEY (journey_id, sequence)
);
`,
	},
	{
		id: "20231116_return_journeys",
		sql: `
ALTER TABLE journeys ADD COLUMN return_id TEXT;
CREATE INDEX idx_journeys_return ON journeys(return_id);
`,
	},
	{
		id:  "20240301_journey_date_index",
		sql: `CREATE INDEX idx_journeys_date ON journeys(date);`,
	},
}

// DB wraps a sql.DB with journey-specific operations.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the SQLite database. Call Migrate before use.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	// One writer at a time; see mattn/go-sqlite3#274.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &DB{conn: conn, now: time.Now}, nil
}

// Migrate applies every migration not yet recorded in schema_migrations and
// returns how many were applied.
func (db *DB) Migrate(ctx context.Context, logger *slog.Logger) (int, error) {
	if _, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id         TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return 0, fmt.Errorf("store: create migrations table: %w", err)
	}

	applied := make(map[string]struct{})
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM schema_migrations`)
	if err != nil {
		return 0, fmt.Errorf("store: read migrations: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		applied[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	n := 0
	for _, m := range migrations {
		if _, ok := applied[m.id]; ok {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return n, err
		}
		logger.Info("migration applied", slog.String("id", m.id))
		n++
	}
	if n == 0 {
		logger.Info("no migrations applied (database up to date)")
	}
	return n, nil
}

func (db *DB) apply(ctx context.Context, m migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("store: migration %s: %w", m.id, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (id) VALUES (?)`, m.id); err != nil {
		return fmt.Errorf("store: record migration %s: %w", m.id, err)
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
