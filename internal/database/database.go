// Package database implements the experience and insight stores on
// database/sql, with SQLite for single-node deployments and PostgreSQL for
// shared ones.
package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Database holds the shared connection behind both stores.
type Database struct {
	db       *sql.DB
	postgres bool
}

// New opens (or creates) a SQLite database at dbPath and initializes the
// schema. Use ":memory:" for an ephemeral database.
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &Database{db: db}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

// NewPostgres connects to PostgreSQL and initializes the schema.
func NewPostgres(dsn string) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	d := &Database{db: db, postgres: true}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// rebind converts ? placeholders to $1, $2, ... when talking to PostgreSQL.
func (d *Database) rebind(query string) string {
	if !d.postgres {
		return query
	}
	n := 1
	out := strings.Builder{}
	for _, ch := range query {
		if ch == '?' {
			out.WriteString(fmt.Sprintf("$%d", n))
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

func (d *Database) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS experiences (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		type TEXT NOT NULL,
		project_id TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		subtask_id TEXT NOT NULL DEFAULT '',
		prompt_id TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		context_extra TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error_code TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		artifacts TEXT NOT NULL DEFAULT '',
		metrics TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		system_version TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_experiences_timestamp ON experiences(timestamp);
	CREATE INDEX IF NOT EXISTS idx_experiences_type ON experiences(type);
	CREATE INDEX IF NOT EXISTS idx_experiences_project ON experiences(project_id);
	CREATE INDEX IF NOT EXISTS idx_experiences_prompt ON experiences(prompt_id);

	CREATE TABLE IF NOT EXISTS insights (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		confidence REAL NOT NULL,
		discovered_at TIMESTAMP NOT NULL,
		last_validated_at TIMESTAMP,
		status TEXT NOT NULL,
		pattern_key TEXT NOT NULL,
		pattern TEXT NOT NULL,
		recommendation TEXT NOT NULL DEFAULT '',
		times_applied INTEGER NOT NULL DEFAULT 0,
		successful_applications INTEGER NOT NULL DEFAULT 0,
		times_applied_failed INTEGER NOT NULL DEFAULT 0,
		effectiveness_score REAL NOT NULL DEFAULT 0,
		validation_history TEXT NOT NULL DEFAULT '',
		UNIQUE(type, pattern_key)
	);
	CREATE INDEX IF NOT EXISTS idx_insights_status ON insights(status);
	`
	_, err := d.db.Exec(schema)
	return err
}
