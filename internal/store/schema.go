// Package store keeps the history of clustering snapshots in SQLite and
// notifies subscribers when a new snapshot becomes current.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/clustermap/internal/notify"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	source     TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_snapshots_checksum ON snapshots(checksum);
`

// Option configures a DB.
type Option func(*DB)

// WithHistoryLimit keeps at most n snapshots; older ones are pruned after
// each save. n <= 0 keeps everything.
func WithHistoryLimit(n int) Option {
	return func(db *DB) {
		db.keep = n
	}
}

// DB wraps a sql.DB with snapshot operations.
type DB struct {
	conn *sql.DB
	keep int

	saveMu sync.Mutex // serializes Save so dedupe sees the latest row
	subs   notify.List[struct{}]
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	db := &DB{conn: conn}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
