package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/DHARANI2D/AEGIS/internal/model"
)

// Kind distinguishes decision records from governance actions. Governance
// actions live in the same chain so the ledger is the total history.
type Kind string

const (
	KindDecision Kind = "DECISION"
	KindIssue    Kind = "ISSUE"
	KindPurge    Kind = "PURGE"
	KindRestore  Kind = "RESTORE"
	KindConfirm  Kind = "CONFIRM_BREACH"
)

// TimestampFormat is the layout used in ledger entry timestamps.
const TimestampFormat = time.RFC3339Nano

// Entry is one immutable ledger record. All fields are flat values (no
// map[string]any) so json.Marshal field order is deterministic and the
// hash is reproducible.
type Entry struct {
	Seq       int64           `json:"seq"`
	Kind      Kind            `json:"kind"`
	AgentID   string          `json:"agent_id"`
	Intent    string          `json:"intent,omitempty"`
	Decision  model.Decision  `json:"decision,omitempty"`
	Reason    string          `json:"reason"`
	RiskLevel model.RiskLevel `json:"risk_level,omitempty"`
	Meta      string          `json:"meta,omitempty"`
	Timestamp string          `json:"ts"`
	PrevHash  string          `json:"prev_hash"`

	// CurrentHash and Signature are computed at append time and excluded
	// from the hashed content.
	CurrentHash string `json:"current_hash"`
	Signature   string `json:"signature,omitempty"`
}

// entryCore is the canonical hashed content: everything except the hash
// and signature themselves.
type entryCore struct {
	Seq       int64           `json:"seq"`
	Kind      Kind            `json:"kind"`
	AgentID   string          `json:"agent_id"`
	Intent    string          `json:"intent,omitempty"`
	Decision  model.Decision  `json:"decision,omitempty"`
	Reason    string          `json:"reason"`
	RiskLevel model.RiskLevel `json:"risk_level,omitempty"`
	Meta      string          `json:"meta,omitempty"`
	Timestamp string          `json:"ts"`
	PrevHash  string          `json:"prev_hash"`
}

// ComputeHash returns "sha256:<hex>" over the entry's canonical bytes.
// The previous hash is part of the content, which is what links the chain.
func (e *Entry) ComputeHash() string {
	core := entryCore{
		Seq:       e.Seq,
		Kind:      e.Kind,
		AgentID:   e.AgentID,
		Intent:    e.Intent,
		Decision:  e.Decision,
		Reason:    e.Reason,
		RiskLevel: e.RiskLevel,
		Meta:      e.Meta,
		Timestamp: e.Timestamp,
		PrevHash:  e.PrevHash,
	}
	// Marshal of a flat struct cannot fail.
	line, _ := json.Marshal(core)
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Time parses the entry timestamp.
func (e *Entry) Time() time.Time {
	t, _ := time.Parse(TimestampFormat, e.Timestamp)
	return t
}
