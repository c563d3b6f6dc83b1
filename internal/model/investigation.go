package model

import "time"

// InvestigationStatus is the lifecycle state of a breach investigation.
// UNDER_INVESTIGATION is the only non-terminal status.
type InvestigationStatus string

const (
	StatusUnderInvestigation InvestigationStatus = "UNDER_INVESTIGATION"
	StatusConfirmed          InvestigationStatus = "CONFIRMED"
	StatusFalsePositive      InvestigationStatus = "FALSE_POSITIVE"
	StatusRestored           InvestigationStatus = "RESTORED"
)

// Terminal reports whether no further status transition is legal.
func (s InvestigationStatus) Terminal() bool {
	return s != StatusUnderInvestigation
}

// TimelineEvent is one contributing event in investigation evidence.
type TimelineEvent struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// Evidence is the immutable snapshot captured when an investigation opens.
// Later agent mutations must never alter stored evidence.
type Evidence struct {
	PreviousTrust  float64         `json:"previous_trust"`
	PreviousStatus AgentStatus     `json:"previous_status"`
	PreviousLevel  int             `json:"previous_level"`
	Timeline       []TimelineEvent `json:"timeline"`
}

// Investigation is the forensic record opened when an agent is revoked.
// Keyed by (agent, opened-at sequence): a restored agent revoked again
// accumulates a new record rather than overwriting the old one.
type Investigation struct {
	ID                  string              `json:"id"`
	AgentID             string              `json:"agent_id"`
	OpenedAtSeq         int64               `json:"opened_at_seq"`
	Severity            RiskLevel           `json:"severity"`
	BreachType          string              `json:"breach_type"`
	DetectionMechanisms []string            `json:"detection_mechanisms"`
	Evidence            Evidence            `json:"evidence"`
	Status              InvestigationStatus `json:"status"`
	OpenedAt            time.Time           `json:"opened_at"`
	ResolvedAt          *time.Time          `json:"resolved_at,omitempty"`
	Notes               string              `json:"notes,omitempty"`
}

// Breach types recorded on investigations.
const (
	BreachTrustCollapse  = "TRUST_COLLAPSE"
	BreachGlobalIncident = "GLOBAL_SECURITY_INCIDENT"
)
