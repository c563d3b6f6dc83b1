package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DHARANI2D/AEGIS/internal/model"
)

// InsertInvestigation persists a newly opened investigation. Records are
// append-only: later status transitions go through UpdateInvestigationStatus
// and evidence is never rewritten.
func (s *Store) InsertInvestigation(inv *model.Investigation) error {
	return insertInvestigation(s.db, inv)
}

// InsertInvestigation persists a newly opened investigation inside the
// transaction.
func (t *Tx) InsertInvestigation(inv *model.Investigation) error {
	return insertInvestigation(t.q, inv)
}

func insertInvestigation(q dbtx, inv *model.Investigation) error {
	detection, err := json.Marshal(inv.DetectionMechanisms)
	if err != nil {
		return fmt.Errorf("store: marshal detection: %w", err)
	}
	evidence, err := json.Marshal(inv.Evidence)
	if err != nil {
		return fmt.Errorf("store: marshal evidence: %w", err)
	}

	var resolved any
	if inv.ResolvedAt != nil {
		resolved = inv.ResolvedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = q.Exec(`
INSERT INTO investigations
	(id, agent_id, opened_at_seq, severity, breach_type, detection, evidence, status, opened_at, resolved_at, notes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.AgentID, inv.OpenedAtSeq, string(inv.Severity), inv.BreachType,
		string(detection), string(evidence), string(inv.Status),
		inv.OpenedAt.UTC().Format(time.RFC3339Nano), resolved, inv.Notes)
	if err != nil {
		return fmt.Errorf("store: insert investigation %s: %w", inv.ID, err)
	}
	return nil
}

// LatestInvestigation returns the most recently opened investigation for an
// agent (the one current governance commands act on).
func (s *Store) LatestInvestigation(agentID string) (*model.Investigation, error) {
	return latestInvestigation(s.db, agentID)
}

// LatestInvestigation reads the agent's newest investigation inside the
// transaction.
func (t *Tx) LatestInvestigation(agentID string) (*model.Investigation, error) {
	return latestInvestigation(t.q, agentID)
}

func latestInvestigation(q dbtx, agentID string) (*model.Investigation, error) {
	row := q.QueryRow(investigationSelect+`
WHERE agent_id = ? ORDER BY opened_at_seq DESC LIMIT 1`, agentID)
	return scanInvestigation(row)
}

// ListInvestigations returns every investigation for an agent, oldest first.
func (s *Store) ListInvestigations(agentID string) ([]*model.Investigation, error) {
	return listInvestigations(s.db, agentID)
}

// ListInvestigations reads the agent's investigations inside the transaction.
func (t *Tx) ListInvestigations(agentID string) ([]*model.Investigation, error) {
	return listInvestigations(t.q, agentID)
}

func listInvestigations(q dbtx, agentID string) ([]*model.Investigation, error) {
	rows, err := q.Query(investigationSelect+`
WHERE agent_id = ? ORDER BY opened_at_seq`, agentID)
	if err != nil {
		return nil, fmt.Errorf("store: list investigations: %w", err)
	}
	defer rows.Close()

	var out []*model.Investigation
	for rows.Next() {
		inv, err := scanInvestigation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// UpdateInvestigationStatus records a status transition. Only status,
// resolution time and notes change; evidence stays as captured at open.
func (s *Store) UpdateInvestigationStatus(id string, status model.InvestigationStatus, resolvedAt time.Time, notes string) error {
	return updateInvestigationStatus(s.db, id, status, resolvedAt, notes)
}

// UpdateInvestigationStatus records a status transition inside the
// transaction.
func (t *Tx) UpdateInvestigationStatus(id string, status model.InvestigationStatus, resolvedAt time.Time, notes string) error {
	return updateInvestigationStatus(t.q, id, status, resolvedAt, notes)
}

func updateInvestigationStatus(q dbtx, id string, status model.InvestigationStatus, resolvedAt time.Time, notes string) error {
	res, err := q.Exec(`
UPDATE investigations SET status = ?, resolved_at = ?, notes = ? WHERE id = ?`,
		string(status), resolvedAt.UTC().Format(time.RFC3339Nano), notes, id)
	if err != nil {
		return fmt.Errorf("store: update investigation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("investigation %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountOpenInvestigations returns how many investigations are unresolved.
func (s *Store) CountOpenInvestigations() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM investigations WHERE status = ?`,
		string(model.StatusUnderInvestigation)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count open investigations: %w", err)
	}
	return n, nil
}

const investigationSelect = `
SELECT id, agent_id, opened_at_seq, severity, breach_type, detection, evidence, status, opened_at, resolved_at, notes
FROM investigations`

func scanInvestigation(row rowScanner) (*model.Investigation, error) {
	var inv model.Investigation
	var severity, status, detection, evidence, openedAt string
	var resolvedAt sql.NullString
	err := row.Scan(&inv.ID, &inv.AgentID, &inv.OpenedAtSeq, &severity, &inv.BreachType,
		&detection, &evidence, &status, &openedAt, &resolvedAt, &inv.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("investigation: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan investigation: %w", err)
	}

	inv.Severity = model.RiskLevel(severity)
	inv.Status = model.InvestigationStatus(status)
	if err := json.Unmarshal([]byte(detection), &inv.DetectionMechanisms); err != nil {
		return nil, fmt.Errorf("store: decode detection: %w", err)
	}
	if err := json.Unmarshal([]byte(evidence), &inv.Evidence); err != nil {
		return nil, fmt.Errorf("store: decode evidence: %w", err)
	}
	if inv.OpenedAt, err = time.Parse(time.RFC3339Nano, openedAt); err != nil {
		return nil, fmt.Errorf("store: parse opened_at: %w", err)
	}
	if resolvedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("store: parse resolved_at: %w", err)
		}
		inv.ResolvedAt = &t
	}
	return &inv, nil
}
