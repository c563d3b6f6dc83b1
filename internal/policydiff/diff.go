// Package policydiff compares two rule-table snapshots so operators can
// review what a rule change does before deploying it.
package policydiff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/DHARANI2D/AEGIS/internal/model"
	"github.com/DHARANI2D/AEGIS/internal/policy"
)

// Change represents a scalar field change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// RuleChange represents a rule addition, removal, or modification.
type RuleChange struct {
	Type string `json:"type"` // "added", "removed", "changed"
	Rule string `json:"rule"`
}

// DiffResult holds the comparison of two snapshots.
type DiffResult struct {
	OldPath     string       `json:"old_path,omitempty"`
	NewPath     string       `json:"new_path,omitempty"`
	Changes     []Change     `json:"changes"`
	RuleChanges []RuleChange `json:"rule_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two rule-table snapshots and returns the differences.
func Diff(old, new *policy.Snapshot) *DiffResult {
	r := &DiffResult{}

	if old.Version != new.Version {
		r.Changes = append(r.Changes, Change{
			Field: "version",
			Old:   old.Version,
			New:   new.Version,
		})
	}

	if old.ConfidenceThreshold != new.ConfidenceThreshold {
		comment := "looser"
		if new.ConfidenceThreshold > old.ConfidenceThreshold {
			comment = "stricter"
		}
		r.Changes = append(r.Changes, Change{
			Field:   "confidence_threshold",
			Old:     fmt.Sprintf("%g", old.ConfidenceThreshold),
			New:     fmt.Sprintf("%g", new.ConfidenceThreshold),
			Comment: comment,
		})
	}

	diffEnvironments(r, old.Environments, new.Environments)
	diffRules(r, old.Rules, new.Rules)
	diffProhibitions(r, old.Prohibitions, new.Prohibitions)

	r.HasChanges = len(r.Changes) > 0 || len(r.RuleChanges) > 0
	return r
}

// thresholdComment classifies a risk-threshold move. Lowering the trigger
// level catches more intents, so lower is stricter; an empty level disables
// the override entirely.
func thresholdComment(old, new model.RiskLevel) string {
	if new == "" {
		return "disabled"
	}
	if old == "" {
		return "enabled"
	}
	if model.RiskRank[new] < model.RiskRank[old] {
		return "stricter"
	}
	return "looser"
}

func diffEnvironments(r *DiffResult, old, new map[model.Environment]policy.EnvOverride) {
	envs := make(map[model.Environment]bool)
	for e := range old {
		envs[e] = true
	}
	for e := range new {
		envs[e] = true
	}

	var sorted []model.Environment
	for e := range envs {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, e := range sorted {
		o, n := old[e], new[e]
		if o.RequireApprovalAtOrAbove != n.RequireApprovalAtOrAbove {
			r.Changes = append(r.Changes, Change{
				Field:   fmt.Sprintf("environments.%s.require_approval_at_or_above", e),
				Old:     string(o.RequireApprovalAtOrAbove),
				New:     string(n.RequireApprovalAtOrAbove),
				Comment: thresholdComment(o.RequireApprovalAtOrAbove, n.RequireApprovalAtOrAbove),
			})
		}
		if o.DenyAtOrAbove != n.DenyAtOrAbove {
			r.Changes = append(r.Changes, Change{
				Field:   fmt.Sprintf("environments.%s.deny_at_or_above", e),
				Old:     string(o.DenyAtOrAbove),
				New:     string(n.DenyAtOrAbove),
				Comment: thresholdComment(o.DenyAtOrAbove, n.DenyAtOrAbove),
			})
		}
	}
}

func ruleLabel(rule policy.Rule) string {
	parts := []string{rule.Intent, fmt.Sprintf("risk=%s", rule.RiskLevel)}
	if !rule.Allowed && rule.EscalationOnly {
		parts = append(parts, "escalation_only")
	} else if !rule.Allowed {
		parts = append(parts, "disallowed")
	}
	if len(rule.RequiredFields) > 0 {
		parts = append(parts, "requires="+strings.Join(rule.RequiredFields, ","))
	}
	return strings.Join(parts, " ")
}

func diffRules(r *DiffResult, oldRules, newRules []policy.Rule) {
	oldMap := make(map[string]policy.Rule)
	for _, rule := range oldRules {
		oldMap[rule.Intent] = rule
	}
	newMap := make(map[string]policy.Rule)
	for _, rule := range newRules {
		newMap[rule.Intent] = rule
	}

	var intents []string
	for intent := range oldMap {
		intents = append(intents, intent)
	}
	for intent := range newMap {
		if _, ok := oldMap[intent]; !ok {
			intents = append(intents, intent)
		}
	}
	sort.Strings(intents)

	for _, intent := range intents {
		o, inOld := oldMap[intent]
		n, inNew := newMap[intent]
		switch {
		case !inOld:
			r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "added", Rule: ruleLabel(n)})
		case !inNew:
			r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "removed", Rule: ruleLabel(o)})
		case o.Allowed != n.Allowed || o.EscalationOnly != n.EscalationOnly ||
			o.RiskLevel != n.RiskLevel || !equalFields(o.RequiredFields, n.RequiredFields):
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "changed",
				Rule: fmt.Sprintf("%s → %s", ruleLabel(o), ruleLabel(n)),
			})
		}
	}
}

func diffProhibitions(r *DiffResult, old, new []string) {
	oldSet := make(map[string]bool, len(old))
	for _, p := range old {
		oldSet[p] = true
	}
	newSet := make(map[string]bool, len(new))
	for _, p := range new {
		newSet[p] = true
	}

	var all []string
	for p := range oldSet {
		all = append(all, p)
	}
	for p := range newSet {
		if !oldSet[p] {
			all = append(all, p)
		}
	}
	sort.Strings(all)

	for _, p := range all {
		switch {
		case !oldSet[p]:
			r.Changes = append(r.Changes, Change{Field: "prohibitions", New: p, Comment: "added"})
		case !newSet[p]:
			r.Changes = append(r.Changes, Change{Field: "prohibitions", Old: p, Comment: "removed"})
		}
	}
}

func equalFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
