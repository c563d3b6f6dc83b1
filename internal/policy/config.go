package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/DHARANI2D/AEGIS/internal/model"
)

// RuleKind is the resolution strategy of a rule pattern.
type RuleKind int

const (
	// KindExact matches the intent name verbatim.
	KindExact RuleKind = iota
	// KindNamespace matches every intent under a dotted prefix ("READ.*").
	KindNamespace
	// KindWildcard matches any intent ("*").
	KindWildcard
)

// Rule is one row of the versioned rule table.
type Rule struct {
	Intent         string          `yaml:"intent"`
	Allowed        bool            `yaml:"allowed"`
	EscalationOnly bool            `yaml:"escalation_only"`
	RiskLevel      model.RiskLevel `yaml:"risk_level"`
	RequiredFields []string        `yaml:"required_fields"`
}

// Kind classifies the rule's intent pattern.
func (r Rule) Kind() RuleKind {
	if r.Intent == "*" {
		return KindWildcard
	}
	if strings.HasSuffix(r.Intent, ".*") {
		return KindNamespace
	}
	return KindExact
}

// ID is the stable identifier recorded on verdicts produced by this rule.
func (r Rule) ID() string {
	name := strings.Trim(strings.ToLower(r.Intent), ".*")
	if name == "" {
		name = "all"
	}
	return "rule." + strings.ReplaceAll(name, ".", "_")
}

// EnvOverride holds per-environment constraints applied after rule matching.
type EnvOverride struct {
	// RequireApprovalAtOrAbove escalates any decision whose rule risk is at
	// or above this level. Empty disables the override.
	RequireApprovalAtOrAbove model.RiskLevel `yaml:"require_approval_at_or_above"`
	// DenyAtOrAbove hard-blocks rules at or above this risk level.
	DenyAtOrAbove model.RiskLevel `yaml:"deny_at_or_above"`
}

// Snapshot is one immutable version of the rule table. A snapshot is loaded
// once per evaluation and never mutated — evaluation is pure against it.
type Snapshot struct {
	Version             string                            `yaml:"version"`
	ConfidenceThreshold float64                           `yaml:"confidence_threshold"`
	Rules               []Rule                            `yaml:"rules"`
	Environments        map[model.Environment]EnvOverride `yaml:"environments"`
	Prohibitions        []string                          `yaml:"prohibitions"`
}

// DefaultSnapshot returns the built-in rule table.
func DefaultSnapshot() *Snapshot {
	return &Snapshot{
		Version:             "builtin",
		ConfidenceThreshold: 0.6,
		Rules: []Rule{
			{Intent: "READ.PII", Allowed: true, RiskLevel: model.RiskHigh, RequiredFields: []string{"target"}},
			{Intent: "READ.*", Allowed: true, RiskLevel: model.RiskLow},
			{Intent: "WRITE.*", Allowed: true, RiskLevel: model.RiskMedium, RequiredFields: []string{"target"}},
			{Intent: "MODIFY.RESOURCE", Allowed: true, RiskLevel: model.RiskHigh, RequiredFields: []string{"target", "action_type"}},
			{Intent: "DELETE.*", Allowed: true, RiskLevel: model.RiskCritical, RequiredFields: []string{"target"}},
			{Intent: "SEND.EXTERNAL_REQUEST", Allowed: true, RiskLevel: model.RiskCritical, RequiredFields: []string{"url"}},
			{Intent: "EXECUTE.*", Allowed: false, EscalationOnly: true, RiskLevel: model.RiskCritical},
		},
		Environments: map[model.Environment]EnvOverride{
			model.EnvProduction: {
				RequireApprovalAtOrAbove: model.RiskHigh,
				DenyAtOrAbove:            model.RiskCritical,
			},
			model.EnvStaging: {
				RequireApprovalAtOrAbove: model.RiskCritical,
			},
		},
		Prohibitions: []string{
			"DELETE.SYSTEM_CORE",
			"ESCALATE.OWN_PRIVILEGE",
			"DISABLE.GOVERNANCE_PROXY",
			"EXFILTRATE.ENCRYPTION_KEYS",
		},
	}
}

// Load reads a rule table snapshot from a YAML file. Empty path or a missing
// file falls back to the built-in snapshot. Invalid YAML is an error.
func Load(path string) (*Snapshot, error) {
	snap, _, err := LoadWithHash(path)
	return snap, err
}

// LoadWithHash loads a snapshot and returns the SHA-256 of the raw YAML
// bytes, so verdicts can record exactly which rule table produced them.
// When the builtin snapshot is used the hash is the SHA-256 of empty input.
func LoadWithHash(path string) (*Snapshot, string, error) {
	if path == "" {
		return DefaultSnapshot(), emptyHash(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSnapshot(), emptyHash(), nil
		}
		return nil, "", fmt.Errorf("failed to read rule table: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	snap := DefaultSnapshot()
	if err := yaml.Unmarshal(data, snap); err != nil {
		return nil, "", fmt.Errorf("failed to parse rule table: %w", err)
	}

	return snap, hash, nil
}

func emptyHash() string {
	h := sha256.Sum256(nil)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Match resolves the intent name against the rule table. Exact rules win
// over namespace rules; the longest namespace prefix wins over shorter ones;
// a bare "*" rule is the last resort. Returns nil when nothing matches.
func (s *Snapshot) Match(intentName string) *Rule {
	var wildcard *Rule
	var namespace *Rule
	namespaceLen := -1

	for i := range s.Rules {
		r := &s.Rules[i]
		switch r.Kind() {
		case KindExact:
			if r.Intent == intentName {
				return r
			}
		case KindNamespace:
			prefix := strings.TrimSuffix(r.Intent, "*")
			if strings.HasPrefix(intentName, prefix) && len(prefix) > namespaceLen {
				namespace = r
				namespaceLen = len(prefix)
			}
		case KindWildcard:
			if wildcard == nil {
				wildcard = r
			}
		}
	}

	if namespace != nil {
		return namespace
	}
	return wildcard
}

// Prohibited reports whether the intent name is constitutionally prohibited.
// Prohibitions cannot be overridden by any rule.
func (s *Snapshot) Prohibited(intentName string) bool {
	upper := strings.ToUpper(intentName)
	for _, p := range s.Prohibitions {
		if upper == strings.ToUpper(p) {
			return true
		}
	}
	return false
}

// DefaultSnapshotYAML returns a commented rule table for `aegis init`.
func DefaultSnapshotYAML() string {
	return `# aegis rule table
#
# Every intent an agent proposes is resolved against this table.
# Resolution order: exact intent > longest namespace prefix > "*".
# Unknown intents never default to ALLOW.
version: "1"

confidence_threshold: 0.6

rules:
  - intent: READ.PII
    allowed: true
    risk_level: HIGH
    required_fields: [target]
  - intent: "READ.*"
    allowed: true
    risk_level: LOW
  - intent: "DELETE.*"
    allowed: true
    risk_level: CRITICAL
    required_fields: [target]
  - intent: "EXECUTE.*"
    allowed: false
    escalation_only: true
    risk_level: CRITICAL

environments:
  production:
    require_approval_at_or_above: HIGH
    deny_at_or_above: CRITICAL
  staging:
    require_approval_at_or_above: CRITICAL

# Constitutional prohibitions. No rule can override these.
prohibitions:
  - DELETE.SYSTEM_CORE
  - ESCALATE.OWN_PRIVILEGE
  - DISABLE.GOVERNANCE_PROXY
  - EXFILTRATE.ENCRYPTION_KEYS
`
}
