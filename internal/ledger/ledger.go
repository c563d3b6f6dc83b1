// Package ledger implements the append-only, hash-chained, signed record of
// every decision and governance action. The chain is the single source of
// truth: agent and investigation state are projections rebuildable from it.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DHARANI2D/AEGIS/internal/model"
)

// GenesisHash is the prev_hash of the first entry in a new chain.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// ErrHalted is returned by Append after tampering has been detected.
// Appends stay refused pending manual reconciliation.
var ErrHalted = errors.New("ledger: appends halted after integrity failure")

// IntegrityError reports a broken hash chain. It is a distinct error kind:
// it signals tampering, not a transient fault.
type IntegrityError struct {
	Seq    int64
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger: chain integrity violation at seq %d: %s", e.Seq, e.Detail)
}

// Ledger appends hash-chained entries to the ledger table. Appends are
// strictly sequential: one writer at a time, enforced by the mutex. This is
// the single serialization point shared by all agents.
type Ledger struct {
	db     *sql.DB
	signer *Signer

	mu       sync.Mutex
	lastSeq  int64
	prevHash string
	halted   bool
}

// Open recovers the chain tail from the ledger table. The signer may be nil
// for an unsigned chain.
func Open(db *sql.DB, signer *Signer) (*Ledger, error) {
	l := &Ledger{db: db, signer: signer, prevHash: GenesisHash}

	row := db.QueryRow(`SELECT seq, current_hash FROM ledger ORDER BY seq DESC LIMIT 1`)
	err := row.Scan(&l.lastSeq, &l.prevHash)
	if errors.Is(err, sql.ErrNoRows) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: recover chain tail: %w", err)
	}
	return l, nil
}

// DBTX is the write surface InsertEntry needs, satisfied by *sql.DB, *sql.Tx
// and store transaction wrappers.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Append assigns the next sequence number, links and hashes the entry,
// signs it, and persists it. The entry is returned with its hash attached.
func (l *Ledger) Append(e Entry) (*Entry, error) {
	return l.AppendWith(e, func(staged *Entry) error {
		return InsertEntry(l.db, staged)
	})
}

// AppendWith stages one entry and hands it to run for persistence, typically
// inside a transaction that also carries the entry's state consequences. The
// chain tail advances only when run returns nil, so a rolled-back write
// leaves the next append with the same seq.
func (l *Ledger) AppendWith(e Entry, run func(*Entry) error) (*Entry, error) {
	staged, err := l.AppendAll([]Entry{e}, func(entries []*Entry) error {
		return run(entries[0])
	})
	if err != nil {
		return nil, err
	}
	return staged[0], nil
}

// AppendAll stages a batch of consecutive entries and hands them to run for
// persistence as one unit. Either every entry commits and the tail advances
// past the last one, or none do.
func (l *Ledger) AppendAll(entries []Entry, run func([]*Entry) error) ([]*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted {
		return nil, ErrHalted
	}

	seq, prev := l.lastSeq, l.prevHash
	staged := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e.Timestamp == "" {
			e.Timestamp = time.Now().UTC().Format(TimestampFormat)
		}
		seq++
		e.Seq = seq
		e.PrevHash = prev
		e.CurrentHash = e.ComputeHash()
		if l.signer != nil {
			e.Signature = l.signer.Sign(e.CurrentHash)
		}
		prev = e.CurrentHash
		staged = append(staged, &e)
	}

	if err := run(staged); err != nil {
		return nil, err
	}

	if n := len(staged); n > 0 {
		l.lastSeq = staged[n-1].Seq
		l.prevHash = staged[n-1].CurrentHash
	}
	return staged, nil
}

// InsertEntry writes one staged entry. Exposed so callers of AppendWith can
// direct the write into their own transaction.
func InsertEntry(db DBTX, e *Entry) error {
	_, err := db.Exec(`
INSERT INTO ledger (seq, kind, agent_id, intent, decision, reason, risk_level, meta, ts, prev_hash, current_hash, signature)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, string(e.Kind), e.AgentID, e.Intent, string(e.Decision), e.Reason,
		string(e.RiskLevel), e.Meta, e.Timestamp, e.PrevHash, e.CurrentHash, e.Signature)
	if err != nil {
		return fmt.Errorf("ledger: append entry: %w", err)
	}
	return nil
}

// LastSeq returns the sequence number of the newest entry (0 when empty).
func (l *Ledger) LastSeq() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Halted reports whether appends are refused due to an integrity failure.
func (l *Ledger) Halted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted
}

// halt stops all further appends. Called when verification fails.
func (l *Ledger) halt() {
	l.mu.Lock()
	l.halted = true
	l.mu.Unlock()
}

// List returns up to limit entries, most recent first.
func (l *Ledger) List(limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(entrySelect+` ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	return collectEntries(rows)
}

// All returns the full chain, oldest first.
func (l *Ledger) All() ([]*Entry, error) {
	rows, err := l.db.Query(entrySelect + ` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("ledger: read chain: %w", err)
	}
	return collectEntries(rows)
}

// DecisionCounts returns how many decision entries exist per verdict.
func (l *Ledger) DecisionCounts() (map[model.Decision]int64, error) {
	rows, err := l.db.Query(`SELECT decision, COUNT(*) FROM ledger WHERE kind = ? GROUP BY decision`, string(KindDecision))
	if err != nil {
		return nil, fmt.Errorf("ledger: count decisions: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Decision]int64)
	for rows.Next() {
		var decision string
		var n int64
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, fmt.Errorf("ledger: scan decision count: %w", err)
		}
		counts[model.Decision(decision)] = n
	}
	return counts, rows.Err()
}

const entrySelect = `
SELECT seq, kind, agent_id, intent, decision, reason, risk_level, meta, ts, prev_hash, current_hash, signature
FROM ledger`

func collectEntries(rows *sql.Rows) ([]*Entry, error) {
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		var e Entry
		var kind, decision, risk string
		if err := rows.Scan(&e.Seq, &kind, &e.AgentID, &e.Intent, &decision, &e.Reason,
			&risk, &e.Meta, &e.Timestamp, &e.PrevHash, &e.CurrentHash, &e.Signature); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.Decision = model.Decision(decision)
		e.RiskLevel = model.RiskLevel(risk)
		out = append(out, &e)
	}
	return out, rows.Err()
}
