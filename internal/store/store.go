// Package store provides SQLite persistence for the governance core: the
// agent table, the append-only ledger table, and the investigation table.
// The logical model lives in the callers; this package only satisfies their
// storage contracts.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DHARANI2D/AEGIS/internal/model"
)

// ErrNotFound is returned when a keyed lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database holding all governed state.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// SQLite allows one writer; a single connection sidesteps SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for the ledger's own table management.
func (s *Store) DB() *sql.DB {
	return s.db
}

// dbtx is the query surface shared by *sql.DB and *sql.Tx, so the same
// statement helpers serve both the plain store methods and Tx.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Tx bundles the store's write operations inside one SQLite transaction. It
// satisfies the investigation repository contract, so investigation state
// changes can commit together with the ledger entry that caused them.
type Tx struct {
	q *sql.Tx
}

// Exec runs a raw statement inside the transaction.
func (t *Tx) Exec(query string, args ...any) (sql.Result, error) {
	return t.q.Exec(query, args...)
}

// WithTx runs fn inside a transaction, committing on nil and rolling back on
// error. Governance operations use this so a ledger append and its state
// consequences land atomically or not at all.
func (s *Store) WithTx(fn func(*Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	if err := fn(&Tx{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id         TEXT PRIMARY KEY,
	public_key TEXT NOT NULL,
	trust      REAL NOT NULL,
	level      INTEGER NOT NULL,
	mode       TEXT NOT NULL,
	status     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger (
	seq          INTEGER PRIMARY KEY,
	kind         TEXT NOT NULL,
	agent_id     TEXT NOT NULL,
	intent       TEXT NOT NULL,
	decision     TEXT NOT NULL,
	reason       TEXT NOT NULL,
	risk_level   TEXT NOT NULL,
	meta         TEXT NOT NULL DEFAULT '',
	ts           TEXT NOT NULL,
	prev_hash    TEXT NOT NULL,
	current_hash TEXT NOT NULL,
	signature    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS investigations (
	id            TEXT PRIMARY KEY,
	agent_id      TEXT NOT NULL,
	opened_at_seq INTEGER NOT NULL,
	severity      TEXT NOT NULL,
	breach_type   TEXT NOT NULL,
	detection     TEXT NOT NULL,
	evidence      TEXT NOT NULL,
	status        TEXT NOT NULL,
	opened_at     TEXT NOT NULL,
	resolved_at   TEXT,
	notes         TEXT NOT NULL DEFAULT '',
	UNIQUE(agent_id, opened_at_seq)
);
CREATE INDEX IF NOT EXISTS idx_ledger_agent ON ledger(agent_id);
CREATE INDEX IF NOT EXISTS idx_investigations_agent ON investigations(agent_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

// UpsertAgent writes the agent row, replacing any previous state.
func (s *Store) UpsertAgent(a *model.Agent) error {
	return upsertAgent(s.db, a)
}

// UpsertAgent writes the agent row inside the transaction.
func (t *Tx) UpsertAgent(a *model.Agent) error {
	return upsertAgent(t.q, a)
}

func upsertAgent(q dbtx, a *model.Agent) error {
	_, err := q.Exec(`
INSERT INTO agents (id, public_key, trust, level, mode, status, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	public_key = excluded.public_key,
	trust      = excluded.trust,
	level      = excluded.level,
	mode       = excluded.mode,
	status     = excluded.status,
	updated_at = excluded.updated_at`,
		a.ID, a.PublicKey, a.Trust, a.Level, string(a.Mode), string(a.Status),
		a.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: upsert agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent loads one agent by id.
func (s *Store) GetAgent(id string) (*model.Agent, error) {
	row := s.db.QueryRow(`
SELECT id, public_key, trust, level, mode, status, updated_at
FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

// ListAgents returns every agent ordered by id.
func (s *Store) ListAgents() ([]*model.Agent, error) {
	rows, err := s.db.Query(`
SELECT id, public_key, trust, level, mode, status, updated_at
FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list agents: %w", err)
	}
	defer rows.Close()

	var agents []*model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*model.Agent, error) {
	var a model.Agent
	var mode, status, updatedAt string
	err := row.Scan(&a.ID, &a.PublicKey, &a.Trust, &a.Level, &mode, &status, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan agent: %w", err)
	}
	a.Mode = model.IsolationMode(mode)
	a.Status = model.AgentStatus(status)
	a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: parse agent timestamp: %w", err)
	}
	return &a, nil
}
