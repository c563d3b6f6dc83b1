package policy

import (
	"fmt"

	"github.com/DHARANI2D/AEGIS/internal/model"
)

// Result is the policy layer's contribution to a verdict.
type Result struct {
	Decision  model.Decision
	Reason    string
	RiskLevel model.RiskLevel
	RuleID    string
}

// Evaluate renders a decision for one intent against an immutable rule
// snapshot. Pure: no shared mutable state, safe for concurrent callers.
//
// Pipeline order (must not be changed):
//  1. Constitutional prohibition — hard DENY, no rule can override
//  2. Rule resolution — unknown intent is DENY (production) or ESCALATE
//  3. allowed=false — DENY, or ESCALATE when the rule is escalation_only
//  4. Required fields — missing field is DENY
//  5. Confidence threshold — below threshold is DENY
//  6. Environment override — ESCALATE or DENY by rule risk level
//  7. Default ALLOW
//
// The pipeline is closed and ordered, not a vote: the first check that
// fires decides, and every failure resolves to the restrictive side.
func Evaluate(intent *model.Intent, snap *Snapshot) Result {
	if snap == nil {
		snap = DefaultSnapshot()
	}

	// Step 1: constitution.
	if snap.Prohibited(intent.Name) {
		return Result{
			Decision:  model.Deny,
			Reason:    fmt.Sprintf("constitutional prohibition: %s", intent.Name),
			RiskLevel: model.RiskCritical,
			RuleID:    "constitution",
		}
	}

	// Step 2: rule resolution. Unknown intents never default to ALLOW.
	rule := snap.Match(intent.Name)
	if rule == nil {
		if intent.Environment == model.EnvProduction {
			return Result{
				Decision:  model.Deny,
				Reason:    fmt.Sprintf("unknown intent: %s", intent.Name),
				RiskLevel: model.RiskHigh,
				RuleID:    "unknown_intent",
			}
		}
		return Result{
			Decision:  model.Escalate,
			Reason:    fmt.Sprintf("unknown intent outside production: %s", intent.Name),
			RiskLevel: model.RiskHigh,
			RuleID:    "unknown_intent",
		}
	}

	// Step 3: disallowed rules.
	if !rule.Allowed {
		if rule.EscalationOnly {
			return Result{
				Decision:  model.Escalate,
				Reason:    fmt.Sprintf("%s requires human review", intent.Name),
				RiskLevel: rule.RiskLevel,
				RuleID:    rule.ID(),
			}
		}
		return Result{
			Decision:  model.Deny,
			Reason:    fmt.Sprintf("%s is not allowed by policy", intent.Name),
			RiskLevel: rule.RiskLevel,
			RuleID:    rule.ID(),
		}
	}

	// Step 4: required fields.
	for _, field := range rule.RequiredFields {
		if intent.Fields[field] == "" {
			return Result{
				Decision:  model.Deny,
				Reason:    fmt.Sprintf("missing required field %q for %s", field, intent.Name),
				RiskLevel: rule.RiskLevel,
				RuleID:    rule.ID(),
			}
		}
	}

	// Step 5: confidence threshold. Self-reported confidence is advisory —
	// it can only block, never force an ALLOW.
	if intent.Confidence < snap.ConfidenceThreshold {
		return Result{
			Decision:  model.Deny,
			Reason:    fmt.Sprintf("confidence %.2f below threshold %.2f", intent.Confidence, snap.ConfidenceThreshold),
			RiskLevel: rule.RiskLevel,
			RuleID:    rule.ID(),
		}
	}

	// Step 6: environment overrides.
	if env, ok := snap.Environments[intent.Environment]; ok {
		if env.DenyAtOrAbove != "" && model.RiskRank[rule.RiskLevel] >= model.RiskRank[env.DenyAtOrAbove] {
			return Result{
				Decision:  model.Deny,
				Reason:    fmt.Sprintf("%s risk blocked in %s", rule.RiskLevel, intent.Environment),
				RiskLevel: rule.RiskLevel,
				RuleID:    rule.ID(),
			}
		}
		if env.RequireApprovalAtOrAbove != "" && model.RiskRank[rule.RiskLevel] >= model.RiskRank[env.RequireApprovalAtOrAbove] {
			return Result{
				Decision:  model.Escalate,
				Reason:    fmt.Sprintf("human approval required for %s risk in %s", rule.RiskLevel, intent.Environment),
				RiskLevel: rule.RiskLevel,
				RuleID:    rule.ID(),
			}
		}
	}

	// Step 7: default allow.
	return Result{
		Decision:  model.Allow,
		Reason:    "policy requirements met",
		RiskLevel: rule.RiskLevel,
		RuleID:    rule.ID(),
	}
}
