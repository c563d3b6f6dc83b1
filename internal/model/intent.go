package model

import "time"

// Intent is a proposed action declared by an agent. Confidence is
// self-reported and advisory only — it can deny an action but never
// single-handedly allow one.
type Intent struct {
	Name        string            `json:"name"` // namespaced, e.g. "READ.PII"
	Confidence  float64           `json:"confidence"`
	Reasoning   string            `json:"reasoning,omitempty"`
	Payload     string            `json:"payload,omitempty"`
	Environment Environment       `json:"environment"`
	Fields      map[string]string `json:"fields,omitempty"`
	Signature   string            `json:"signature,omitempty"` // base64 ed25519 over Name
}

// Finding is one sensitive-data match reported by the pattern scanner.
// Redacted keeps only the first and last two characters of the match —
// the raw value never leaves the scanner.
type Finding struct {
	Type     string    `json:"type"`
	Severity RiskLevel `json:"severity"`
	Start    int       `json:"start"`
	End      int       `json:"end"`
	Redacted string    `json:"redacted"`
}

// Verdict is the outcome of one evaluation, as returned to callers and
// recorded in the ledger.
type Verdict struct {
	Decision  Decision      `json:"decision"`
	Reason    string        `json:"reason"`
	RiskLevel RiskLevel     `json:"risk_level"`
	RuleID    string        `json:"rule_id,omitempty"`
	Findings  []Finding     `json:"findings,omitempty"`
	Seq       int64         `json:"seq"`
	Timestamp time.Time     `json:"timestamp"`
	Trust     float64       `json:"trust"`
	Level     int           `json:"level"`
	Mode      IsolationMode `json:"mode"`
	Revoked   bool          `json:"revoked,omitempty"`
}
