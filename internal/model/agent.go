package model

import "time"

// AgentStatus is the lifecycle state of a governed agent.
type AgentStatus string

const (
	StatusActive  AgentStatus = "ACTIVE"
	StatusRevoked AgentStatus = "REVOKED"
)

// IsolationMode is the coarse access tier derived from the isolation level.
type IsolationMode string

const (
	ModeFullAccess IsolationMode = "FULL_ACCESS"
	ModeReduced    IsolationMode = "REDUCED"
	ModeIsolated   IsolationMode = "ISOLATED"
)

// InitialTrust is the trust score assigned at identity issuance.
const InitialTrust = 100.0

// MaxLevel is the isolation level of a fully trusted agent.
const MaxLevel = 10

// Agent is one identity under governance. Mutated only by the trust tracker;
// never hard-deleted (revocation is a state, not removal).
type Agent struct {
	ID        string        `json:"id"`
	PublicKey string        `json:"public_key"` // base64 ed25519
	Trust     float64       `json:"trust"`
	Level     int           `json:"level"`
	Mode      IsolationMode `json:"mode"`
	Status    AgentStatus   `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewAgent returns an agent in the fully trusted initial state.
func NewAgent(id, publicKey string) *Agent {
	return &Agent{
		ID:        id,
		PublicKey: publicKey,
		Trust:     InitialTrust,
		Level:     MaxLevel,
		Mode:      ModeFullAccess,
		Status:    StatusActive,
		UpdatedAt: time.Now().UTC(),
	}
}

// LevelForTrust maps a 0-100 trust score to the 0-10 isolation level.
func LevelForTrust(trust float64) int {
	if trust <= 0 {
		return 0
	}
	level := int(trust / 10)
	if level > MaxLevel {
		level = MaxLevel
	}
	return level
}

// ModeForLevel derives the coarse access mode from an isolation level.
func ModeForLevel(level int) IsolationMode {
	switch {
	case level >= 8:
		return ModeFullAccess
	case level >= 1:
		return ModeReduced
	default:
		return ModeIsolated
	}
}

// ClampTrust bounds a trust score to [0, 100].
func ClampTrust(trust float64) float64 {
	if trust < 0 {
		return 0
	}
	if trust > InitialTrust {
		return InitialTrust
	}
	return trust
}

// Revoked reports whether the agent is in the terminal isolation state.
func (a *Agent) Revoked() bool {
	return a.Status == StatusRevoked
}
