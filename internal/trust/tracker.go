// Package trust implements the per-agent trust score and progressive
// isolation state machine. Agents start fully trusted; denied actions erode
// trust, allowed actions slowly rebuild it, and crossing into isolation
// level 0 is the terminal transition that revokes the agent.
package trust

import (
	"fmt"
	"sync"
	"time"

	"github.com/DHARANI2D/AEGIS/internal/model"
)

// Outcome reports the agent state after one Apply.
type Outcome struct {
	Trust float64
	Level int
	Mode  model.IsolationMode
	// Transitioned is true when this apply crossed into level 0 and
	// revoked the agent.
	Transitioned bool
}

type denyRecord struct {
	intent string
	at     time.Time
}

// Tracker drives trust deltas and isolation transitions from decisions.
// Callers serialize Applies per agent; the tracker's own lock only guards
// its repeat-offense and timeline bookkeeping.
type Tracker struct {
	cfg Config

	mu       sync.Mutex
	lastDeny map[string]denyRecord
	timeline map[string][]model.TimelineEvent
}

// NewTracker creates a tracker with the given schedule.
func NewTracker(cfg Config) *Tracker {
	if cfg.TimelineDepth <= 0 {
		cfg = DefaultConfig()
	}
	return &Tracker{
		cfg:      cfg,
		lastDeny: make(map[string]denyRecord),
		timeline: make(map[string][]model.TimelineEvent),
	}
}

// Apply consumes one decision outcome and mutates the agent's trust,
// isolation level, mode and status. It is the only legal mutator of those
// fields on the decision path.
func (t *Tracker) Apply(agent *model.Agent, intentName string, decision model.Decision, risk model.RiskLevel, at time.Time) Outcome {
	wasRevoked := agent.Revoked()

	switch decision {
	case model.Allow:
		if !wasRevoked {
			agent.Trust = model.ClampTrust(agent.Trust + t.cfg.RecoveryPerAllow)
		}
	case model.Deny:
		penalty := t.cfg.Penalty(risk)
		if t.isRepeatOffense(agent.ID, intentName, at) {
			penalty *= t.cfg.RepeatMultiplier
		}
		agent.Trust = model.ClampTrust(agent.Trust - penalty)
		t.recordDeny(agent.ID, intentName, at)
	case model.Escalate:
		// Escalation parks the action for a human; trust is untouched.
	}

	t.record(agent.ID, fmt.Sprintf("%s %s (%s)", decision, intentName, risk), at)

	agent.Level = model.LevelForTrust(agent.Trust)

	// Revocation, level 0 and trust 0 are one state: crossing into level 0
	// zeroes whatever residual trust the last penalty left behind.
	transitioned := false
	if agent.Level == 0 && !wasRevoked {
		agent.Trust = 0
		agent.Status = model.StatusRevoked
		transitioned = true
	}

	agent.Mode = model.ModeForLevel(agent.Level)
	agent.UpdatedAt = at

	return Outcome{
		Trust:        agent.Trust,
		Level:        agent.Level,
		Mode:         agent.Mode,
		Transitioned: transitioned,
	}
}

// ForceRevoke drops the agent to the terminal state regardless of trust.
// Used by the fleet-wide purge. Returns false if already revoked.
func (t *Tracker) ForceRevoke(agent *model.Agent, reason string, at time.Time) bool {
	if agent.Revoked() {
		return false
	}
	agent.Trust = 0
	agent.Level = 0
	agent.Mode = model.ModeIsolated
	agent.Status = model.StatusRevoked
	agent.UpdatedAt = at
	t.record(agent.ID, reason, at)
	return true
}

// Restore returns a revoked agent to the fully trusted state. The caller is
// responsible for checking the investigation precondition first.
func (t *Tracker) Restore(agent *model.Agent, at time.Time) {
	agent.Trust = model.InitialTrust
	agent.Level = model.MaxLevel
	agent.Mode = model.ModeFullAccess
	agent.Status = model.StatusActive
	agent.UpdatedAt = at
	t.record(agent.ID, "agent restored", at)
}

// Timeline returns a copy of the agent's recent event timeline, oldest first.
func (t *Tracker) Timeline(agentID string) []model.TimelineEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	events := t.timeline[agentID]
	out := make([]model.TimelineEvent, len(events))
	copy(out, events)
	return out
}

func (t *Tracker) isRepeatOffense(agentID, intentName string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.lastDeny[agentID]
	return ok && rec.intent == intentName && at.Sub(rec.at) <= t.cfg.RepeatWindow
}

func (t *Tracker) recordDeny(agentID, intentName string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastDeny[agentID] = denyRecord{intent: intentName, at: at}
}

func (t *Tracker) record(agentID, event string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	events := append(t.timeline[agentID], model.TimelineEvent{Event: event, Timestamp: at})
	if len(events) > t.cfg.TimelineDepth {
		events = events[len(events)-t.cfg.TimelineDepth:]
	}
	t.timeline[agentID] = events
}
