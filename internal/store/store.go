// Package store persists agents, tasks, schedules, triggers, approvals and
// the activity log in a single SQLite database. Every mutation writes its
// activity row in the same transaction, so the log never disagrees with the
// entities it describes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// DefaultTaskLimit bounds task listings when the caller gives no limit.
const DefaultTaskLimit = 100

// Store is the SQLite-backed persistence layer. SQLite allows one writer at
// a time; the mutex serializes write transactions so concurrent engines
// never see SQLITE_BUSY.
type Store struct {
	db *sql.DB

	writeMu sync.Mutex
}

// Open opens (and if needed creates) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	goal           TEXT NOT NULL DEFAULT '',
	personality    TEXT NOT NULL DEFAULT '',
	provider       TEXT NOT NULL DEFAULT '',
	model          TEXT NOT NULL DEFAULT '',
	temperature    REAL NOT NULL DEFAULT 0,
	tools          TEXT NOT NULL DEFAULT '[]',
	autonomy_level INTEGER NOT NULL DEFAULT 2,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	agent_id     TEXT NOT NULL,
	task_type    TEXT NOT NULL,
	input        TEXT NOT NULL DEFAULT '{}',
	status       TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT 'manual',
	source_id    TEXT NOT NULL DEFAULT '',
	result       TEXT,
	error        TEXT NOT NULL DEFAULT '',
	retry_count  INTEGER NOT NULL DEFAULT 0,
	scheduled_at TEXT,
	created_at   TEXT NOT NULL,
	started_at   TEXT,
	completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_tasks_agent ON tasks(agent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

CREATE TABLE IF NOT EXISTS schedules (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	cron_expr  TEXT NOT NULL DEFAULT '',
	run_at     TEXT,
	task_type  TEXT NOT NULL,
	task_input TEXT NOT NULL DEFAULT '{}',
	enabled    INTEGER NOT NULL DEFAULT 1,
	last_run   TEXT,
	next_run   TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS triggers (
	id             TEXT PRIMARY KEY,
	agent_id       TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	trigger_type   TEXT NOT NULL,
	config         TEXT NOT NULL DEFAULT '{}',
	task_type      TEXT NOT NULL,
	task_input     TEXT NOT NULL DEFAULT '{}',
	enabled        INTEGER NOT NULL DEFAULT 1,
	last_triggered TEXT,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS approvals (
	id             TEXT PRIMARY KEY,
	agent_id       TEXT NOT NULL,
	task_id        TEXT NOT NULL DEFAULT '',
	action_type    TEXT NOT NULL,
	action_details TEXT NOT NULL DEFAULT '{}',
	risk_level     TEXT NOT NULL,
	status         TEXT NOT NULL,
	modified_input TEXT,
	created_at     TEXT NOT NULL,
	decided_at     TEXT
);

CREATE TABLE IF NOT EXISTS activity_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id    TEXT NOT NULL DEFAULT '',
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_timestamp ON activity_log(timestamp);
`

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// write runs fn in a serialized write transaction.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
