// Package investigation manages breach-investigation records. A record is
// opened exactly when an agent is revoked, its evidence is frozen at open
// time, and its status may only move along the legal transition graph.
package investigation

import (
	"errors"
	"fmt"
	"time"

	"github.com/DHARANI2D/AEGIS/internal/model"
)

// ErrIllegalTransition is returned for a status change the transition graph
// does not permit. Nothing is mutated when it is returned.
var ErrIllegalTransition = errors.New("illegal investigation transition")

// Repository is the storage contract the manager needs.
type Repository interface {
	InsertInvestigation(*model.Investigation) error
	LatestInvestigation(agentID string) (*model.Investigation, error)
	ListInvestigations(agentID string) ([]*model.Investigation, error)
	UpdateInvestigationStatus(id string, status model.InvestigationStatus, resolvedAt time.Time, notes string) error
}

// Manager owns investigation lifecycle against a repository.
type Manager struct {
	repo Repository
}

// NewManager creates a manager over the given repository.
func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo}
}

// RecordID derives the stable investigation id from its natural key.
func RecordID(agentID string, seq int64) string {
	return fmt.Sprintf("inv-%s-%d", agentID, seq)
}

// NewRecord builds an investigation record in the UNDER_INVESTIGATION state.
// Shared by the live path and ledger replay so both produce identical rows.
func NewRecord(agentID string, seq int64, severity model.RiskLevel, breachType string, detection []string, evidence model.Evidence, at time.Time) *model.Investigation {
	return &model.Investigation{
		ID:                  RecordID(agentID, seq),
		AgentID:             agentID,
		OpenedAtSeq:         seq,
		Severity:            severity,
		BreachType:          breachType,
		DetectionMechanisms: detection,
		Evidence:            evidence,
		Status:              model.StatusUnderInvestigation,
		OpenedAt:            at.UTC(),
	}
}

// Open persists a new investigation. The evidence snapshot is captured by
// the caller before the revocation mutated the agent.
func (m *Manager) Open(agentID string, seq int64, severity model.RiskLevel, breachType string, detection []string, evidence model.Evidence, at time.Time) (*model.Investigation, error) {
	inv := NewRecord(agentID, seq, severity, breachType, detection, evidence, at)
	if err := m.repo.InsertInvestigation(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Get returns the agent's current (most recently opened) investigation.
func (m *Manager) Get(agentID string) (*model.Investigation, error) {
	return m.repo.LatestInvestigation(agentID)
}

// History returns every investigation ever opened for the agent.
func (m *Manager) History(agentID string) ([]*model.Investigation, error) {
	return m.repo.ListInvestigations(agentID)
}

// Transition moves the agent's current investigation to newStatus.
// UNDER_INVESTIGATION may move to CONFIRMED, FALSE_POSITIVE or RESTORED;
// every other status is terminal.
func (m *Manager) Transition(agentID string, newStatus model.InvestigationStatus, notes string, at time.Time) (*model.Investigation, error) {
	inv, err := m.repo.LatestInvestigation(agentID)
	if err != nil {
		return nil, err
	}

	if inv.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is terminal (wanted %s)", ErrIllegalTransition, inv.Status, newStatus)
	}
	if newStatus == model.StatusUnderInvestigation {
		return nil, fmt.Errorf("%w: cannot reopen an investigation", ErrIllegalTransition)
	}

	if err := m.repo.UpdateInvestigationStatus(inv.ID, newStatus, at, notes); err != nil {
		return nil, err
	}

	resolved := at.UTC()
	inv.Status = newStatus
	inv.ResolvedAt = &resolved
	inv.Notes = notes
	return inv, nil
}
