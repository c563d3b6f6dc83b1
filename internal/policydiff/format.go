package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	header := fmt.Sprintf("Rule table diff: %s → %s\n", r.OldPath, r.NewPath)
	if !r.HasChanges {
		return header + "\nNo changes detected.\n"
	}

	var b strings.Builder
	b.WriteString(header)

	scalar := filterField(r.Changes, func(f string) bool {
		return f != "prohibitions" && !strings.HasPrefix(f, "environments.")
	})
	envs := filterField(r.Changes, func(f string) bool { return strings.HasPrefix(f, "environments.") })
	prohibitions := filterField(r.Changes, func(f string) bool { return f == "prohibitions" })

	if len(scalar) > 0 {
		b.WriteString("\n")
		for _, c := range scalar {
			fmt.Fprintf(&b, "  %-24s %s → %s", c.Field+":", c.Old, c.New)
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
	}

	if len(envs) > 0 {
		b.WriteString("\n  Environments:\n")
		for _, c := range envs {
			name := strings.TrimPrefix(c.Field, "environments.")
			fmt.Fprintf(&b, "    %-44s %s → %s", name+":", orNone(c.Old), orNone(c.New))
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
	}

	if len(r.RuleChanges) > 0 {
		b.WriteString("\n  Rules:\n")
		for _, rc := range r.RuleChanges {
			switch rc.Type {
			case "added":
				fmt.Fprintf(&b, "    + %s\n", rc.Rule)
			case "removed":
				fmt.Fprintf(&b, "    - %s\n", rc.Rule)
			case "changed":
				fmt.Fprintf(&b, "    ~ %s\n", rc.Rule)
			}
		}
	}

	if len(prohibitions) > 0 {
		b.WriteString("\n  Prohibitions:\n")
		for _, c := range prohibitions {
			switch c.Comment {
			case "added":
				fmt.Fprintf(&b, "    + %s\n", c.New)
			case "removed":
				fmt.Fprintf(&b, "    - %s\n", c.Old)
			}
		}
	}

	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func filterField(changes []Change, keep func(string) bool) []Change {
	var out []Change
	for _, c := range changes {
		if keep(c.Field) {
			out = append(out, c)
		}
	}
	return out
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
