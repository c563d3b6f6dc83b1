package ledger

import (
	"fmt"
	"strings"

	"github.com/DHARANI2D/AEGIS/internal/investigation"
	"github.com/DHARANI2D/AEGIS/internal/model"
	"github.com/DHARANI2D/AEGIS/internal/trust"
)

// Projection is the agent and investigation state materialized from the
// chain. Replaying an untampered ledger from genesis must reproduce the
// live tables exactly — that equivalence is the core correctness property.
type Projection struct {
	Agents         map[string]*model.Agent
	Investigations map[string]*model.Investigation
}

// DetectionMechanisms decodes the detection layer list carried in a
// decision entry's meta field.
func (e *Entry) DetectionMechanisms() []string {
	if e.Meta == "" {
		return nil
	}
	parts := strings.Split(e.Meta, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Replay rebuilds agent and investigation state by applying every entry in
// order, using the same trust schedule the live path used.
func Replay(entries []*Entry, cfg trust.Config) (*Projection, error) {
	return ReplayWith(entries, trust.NewTracker(cfg))
}

// ReplayWith replays into a caller-supplied tracker. The governor uses this
// at startup so the tracker's repeat-offense and timeline bookkeeping comes
// back exactly as it was before the restart.
func ReplayWith(entries []*Entry, tracker *trust.Tracker) (*Projection, error) {
	p := &Projection{
		Agents:         make(map[string]*model.Agent),
		Investigations: make(map[string]*model.Investigation),
	}
	latestInv := make(map[string]*model.Investigation)

	for _, e := range entries {
		at := e.Time()

		switch e.Kind {
		case KindIssue:
			a := model.NewAgent(e.AgentID, e.Meta)
			a.UpdatedAt = at
			p.Agents[e.AgentID] = a

		case KindDecision:
			a, ok := p.Agents[e.AgentID]
			if !ok {
				return nil, fmt.Errorf("ledger: replay: decision for unknown agent %s at seq %d", e.AgentID, e.Seq)
			}
			prior := *a
			out := tracker.Apply(a, e.Intent, e.Decision, e.RiskLevel, at)
			if out.Transitioned {
				inv := investigation.NewRecord(e.AgentID, e.Seq, e.RiskLevel, model.BreachTrustCollapse,
					e.DetectionMechanisms(), evidenceFrom(prior, tracker.Timeline(e.AgentID)), at)
				p.Investigations[inv.ID] = inv
				latestInv[e.AgentID] = inv
			}

		case KindPurge:
			a, ok := p.Agents[e.AgentID]
			if !ok {
				return nil, fmt.Errorf("ledger: replay: purge of unknown agent %s at seq %d", e.AgentID, e.Seq)
			}
			prior := *a
			if tracker.ForceRevoke(a, e.Reason, at) {
				inv := investigation.NewRecord(e.AgentID, e.Seq, model.RiskCritical, model.BreachGlobalIncident,
					e.DetectionMechanisms(), evidenceFrom(prior, tracker.Timeline(e.AgentID)), at)
				p.Investigations[inv.ID] = inv
				latestInv[e.AgentID] = inv
			}

		case KindRestore:
			a, ok := p.Agents[e.AgentID]
			if !ok {
				return nil, fmt.Errorf("ledger: replay: restore of unknown agent %s at seq %d", e.AgentID, e.Seq)
			}
			inv, ok := latestInv[e.AgentID]
			if !ok {
				return nil, fmt.Errorf("ledger: replay: restore without investigation for %s at seq %d", e.AgentID, e.Seq)
			}
			tracker.Restore(a, at)
			resolved := at
			inv.Status = model.StatusRestored
			inv.ResolvedAt = &resolved
			inv.Notes = e.Reason

		case KindConfirm:
			inv, ok := latestInv[e.AgentID]
			if !ok {
				return nil, fmt.Errorf("ledger: replay: confirm without investigation for %s at seq %d", e.AgentID, e.Seq)
			}
			resolved := at
			inv.Status = model.StatusConfirmed
			inv.ResolvedAt = &resolved
			inv.Notes = e.Reason

		default:
			return nil, fmt.Errorf("ledger: replay: unknown entry kind %q at seq %d", e.Kind, e.Seq)
		}
	}

	return p, nil
}

func evidenceFrom(prior model.Agent, timeline []model.TimelineEvent) model.Evidence {
	return model.Evidence{
		PreviousTrust:  prior.Trust,
		PreviousStatus: prior.Status,
		PreviousLevel:  prior.Level,
		Timeline:       timeline,
	}
}
