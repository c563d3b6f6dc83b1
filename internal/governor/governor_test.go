package governor

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DHARANI2D/AEGIS/internal/investigation"
	"github.com/DHARANI2D/AEGIS/internal/ledger"
	"github.com/DHARANI2D/AEGIS/internal/model"
	"github.com/DHARANI2D/AEGIS/internal/store"
)

func newGovernor(t *testing.T) *Governor {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "aegis.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	led, err := ledger.Open(st.DB(), nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	g, err := New(st, led, Options{})
	if err != nil {
		t.Fatalf("new governor: %v", err)
	}
	return g
}

func issue(t *testing.T, g *Governor, id string) {
	t.Helper()
	if _, err := g.IssueIdentity(id); err != nil {
		t.Fatalf("issue %s: %v", id, err)
	}
}

// sendIntent resolves to a CRITICAL-risk rule that production hard-blocks.
func sendIntent() *model.Intent {
	return &model.Intent{
		Name:        "SEND.EXTERNAL_REQUEST",
		Confidence:  0.9,
		Environment: model.EnvProduction,
		Fields:      map[string]string{"url": "https://exfil.example.com"},
	}
}

func readIntent() *model.Intent {
	return &model.Intent{
		Name:        "READ.LOGS",
		Confidence:  0.9,
		Environment: model.EnvDev,
	}
}

func TestAllowPath(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1")

	v, err := g.Evaluate("a1", readIntent())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if v.Decision != model.Allow {
		t.Fatalf("decision = %s (%s)", v.Decision, v.Reason)
	}
	if v.Trust != 100 || v.Level != 10 || v.Mode != model.ModeFullAccess {
		t.Fatalf("verdict state = %+v", v)
	}
	if v.Seq != 2 { // seq 1 is the issuance
		t.Fatalf("seq = %d, want 2", v.Seq)
	}
}

func TestThreeCriticalDeniesRevoke(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1")

	wantTrust := []float64{66, 15, 0}
	for i, want := range wantTrust {
		v, err := g.Evaluate("a1", sendIntent())
		if err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
		if v.Decision != model.Deny {
			t.Fatalf("deny %d: decision = %s (%s)", i, v.Decision, v.Reason)
		}
		if v.Trust != want {
			t.Fatalf("deny %d: trust = %v, want %v", i, v.Trust, want)
		}
	}

	agent, err := g.Agent("a1")
	if err != nil {
		t.Fatal(err)
	}
	if !agent.Revoked() || agent.Level != 0 || agent.Mode != model.ModeIsolated {
		t.Fatalf("agent not isolated: %+v", agent)
	}

	inv, err := g.Investigation("a1")
	if err != nil {
		t.Fatalf("investigation: %v", err)
	}
	if inv.Status != model.StatusUnderInvestigation || inv.BreachType != model.BreachTrustCollapse {
		t.Fatalf("investigation: %+v", inv)
	}
	if inv.Evidence.PreviousTrust != 15 || inv.Evidence.PreviousLevel != 1 || inv.Evidence.PreviousStatus != model.StatusActive {
		t.Fatalf("evidence snapshot: %+v", inv.Evidence)
	}
	if len(inv.Evidence.Timeline) != 3 {
		t.Fatalf("timeline length = %d, want 3", len(inv.Evidence.Timeline))
	}
	for i, ev := range inv.Evidence.Timeline {
		if !strings.HasPrefix(ev.Event, "DENY SEND.EXTERNAL_REQUEST") {
			t.Fatalf("timeline[%d] = %q", i, ev.Event)
		}
		if i > 0 && ev.Timestamp.Before(inv.Evidence.Timeline[i-1].Timestamp) {
			t.Fatalf("timeline out of order at %d", i)
		}
	}

	// A single additional investigation exists, none before the revocation.
	history, err := g.InvestigationHistory("a1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
}

func TestRevokedAgentAlwaysDenied(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1")
	for i := 0; i < 3; i++ {
		if _, err := g.Evaluate("a1", sendIntent()); err != nil {
			t.Fatal(err)
		}
	}

	v, err := g.Evaluate("a1", readIntent())
	if err != nil {
		t.Fatalf("evaluate revoked: %v", err)
	}
	if v.Decision != model.Deny || !v.Revoked {
		t.Fatalf("verdict = %+v", v)
	}
	if v.Trust != 0 {
		t.Fatalf("revoked trust = %v", v.Trust)
	}
}

func TestEscalationLeavesTrustUntouched(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1")

	v, err := g.Evaluate("a1", &model.Intent{
		Name:        "EXECUTE.SHELL",
		Confidence:  0.9,
		Environment: model.EnvDev,
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.Decision != model.Escalate {
		t.Fatalf("decision = %s (%s)", v.Decision, v.Reason)
	}
	if v.Trust != 100 {
		t.Fatalf("trust = %v, want 100", v.Trust)
	}
}

func TestSensitivePayloadForcesDeny(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1")

	raw := "123-45-6789"
	v, err := g.Evaluate("a1", &model.Intent{
		Name:        "READ.PII",
		Confidence:  0.9,
		Environment: model.EnvDev,
		Payload:     "customer ssn is " + raw,
		Fields:      map[string]string{"target": "crm"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.Decision != model.Deny {
		t.Fatalf("decision = %s (%s)", v.Decision, v.Reason)
	}
	if v.RiskLevel != model.RiskCritical {
		t.Fatalf("risk = %s", v.RiskLevel)
	}
	if len(v.Findings) != 1 || v.Findings[0].Type != "SSN" {
		t.Fatalf("findings = %+v", v.Findings)
	}
	if v.Findings[0].Redacted != "12****89" {
		t.Fatalf("redacted = %q", v.Findings[0].Redacted)
	}
	if strings.Contains(v.Reason, raw) {
		t.Fatalf("raw value leaked into reason: %q", v.Reason)
	}

	// The chain entry must not carry the raw value either.
	entries, err := g.Logs(1)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(entries[0].Reason, raw) {
		t.Fatalf("raw value leaked into ledger: %q", entries[0].Reason)
	}
	if got := entries[0].DetectionMechanisms(); len(got) != 2 || got[0] != "policy" || got[1] != "scanner" {
		t.Fatalf("detection = %v", got)
	}
}

func TestValidationNeverTouchesLedger(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1")
	before := g.ledger.LastSeq()

	bad := []*model.Intent{
		nil,
		{Name: "", Confidence: 0.9, Environment: model.EnvDev},
		{Name: "READ.LOGS", Confidence: 1.5, Environment: model.EnvDev},
		{Name: "READ.LOGS", Confidence: 0.9, Environment: "qa"},
	}
	for i, intent := range bad {
		if _, err := g.Evaluate("a1", intent); !errors.Is(err, ErrInvalidIntent) {
			t.Fatalf("bad intent %d: err = %v", i, err)
		}
	}
	if _, err := g.Evaluate("", readIntent()); !errors.Is(err, ErrInvalidIntent) {
		t.Fatal("empty agent id must be invalid")
	}

	if g.ledger.LastSeq() != before {
		t.Fatal("rejected requests reached the ledger")
	}
}

func TestUnknownAgent(t *testing.T) {
	g := newGovernor(t)
	if _, err := g.Evaluate("ghost", readIntent()); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("err = %v", err)
	}
}

func TestIssueDuplicateRejected(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1")
	if _, err := g.IssueIdentity("a1"); !errors.Is(err, ErrAgentExists) {
		t.Fatalf("err = %v", err)
	}
}

func TestPurgeRevokesEntireFleet(t *testing.T) {
	g := newGovernor(t)
	for _, id := range []string{"a1", "a2", "a3"} {
		issue(t, g, id)
	}

	n, err := g.Purge("credential leak in shared runtime")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked = %d, want 3", n)
	}

	agents, err := g.Agents()
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range agents {
		if !a.Revoked() || a.Trust != 0 {
			t.Fatalf("agent %s survived purge: %+v", a.ID, a)
		}
		inv, err := g.Investigation(a.ID)
		if err != nil {
			t.Fatalf("investigation for %s: %v", a.ID, err)
		}
		if inv.BreachType != model.BreachGlobalIncident || inv.Severity != model.RiskCritical {
			t.Fatalf("investigation for %s: %+v", a.ID, inv)
		}
		if inv.Evidence.PreviousTrust != 100 || inv.Evidence.PreviousStatus != model.StatusActive {
			t.Fatalf("evidence for %s: %+v", a.ID, inv.Evidence)
		}
	}

	// Idempotent: a second purge finds nothing active.
	n, err = g.Purge("again")
	if err != nil || n != 0 {
		t.Fatalf("second purge: n=%d err=%v", n, err)
	}
}

func TestRestoreRequiresOpenInvestigation(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1")

	_, err := g.Restore("a1", "no breach here")
	if !errors.Is(err, investigation.ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestRestoreReturnsAgentToService(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1")
	for i := 0; i < 3; i++ {
		if _, err := g.Evaluate("a1", sendIntent()); err != nil {
			t.Fatal(err)
		}
	}

	agent, err := g.Restore("a1", "false positive, scanner rule too broad")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if agent.Revoked() || agent.Trust != 100 || agent.Level != 10 {
		t.Fatalf("restored agent: %+v", agent)
	}

	inv, err := g.Investigation("a1")
	if err != nil {
		t.Fatal(err)
	}
	if inv.Status != model.StatusRestored {
		t.Fatalf("investigation status = %s", inv.Status)
	}

	v, err := g.Evaluate("a1", readIntent())
	if err != nil {
		t.Fatal(err)
	}
	if v.Decision != model.Allow {
		t.Fatalf("restored agent denied: %s (%s)", v.Decision, v.Reason)
	}
}

func TestConfirmBreachIsPermanent(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1")
	for i := 0; i < 3; i++ {
		if _, err := g.Evaluate("a1", sendIntent()); err != nil {
			t.Fatal(err)
		}
	}

	agent, err := g.ConfirmBreach("a1", "exfiltration confirmed by review")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !agent.Revoked() {
		t.Fatal("confirmed agent must stay revoked")
	}

	// CONFIRMED is terminal: restore is no longer possible.
	if _, err := g.Restore("a1", "undo"); !errors.Is(err, investigation.ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestStats(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1")
	issue(t, g, "a2")

	if _, err := g.Evaluate("a1", readIntent()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := g.Evaluate("a2", sendIntent()); err != nil {
			t.Fatal(err)
		}
	}

	s, err := g.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalAgents != 2 || s.ActiveAgents != 1 {
		t.Fatalf("agent counts: %+v", s)
	}
	if s.AverageTrust != 50 { // (100 + 0) / 2
		t.Fatalf("average trust = %v", s.AverageTrust)
	}
	if s.Interventions != 3 {
		t.Fatalf("interventions = %d", s.Interventions)
	}
	if s.PendingReviews != 1 {
		t.Fatalf("pending reviews = %d", s.PendingReviews)
	}
	if s.LedgerHeight != 6 { // 2 issues + 4 decisions
		t.Fatalf("ledger height = %d", s.LedgerHeight)
	}
}

func openGovernor(t *testing.T, path string) (*Governor, *store.Store) {
	t.Helper()
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	led, err := ledger.Open(st.DB(), nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	g, err := New(st, led, Options{})
	if err != nil {
		t.Fatalf("new governor: %v", err)
	}
	return g, st
}

func TestRepeatOffenseSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aegis.db")

	g1, st1 := openGovernor(t, path)
	issue(t, g1, "a1")
	v, err := g1.Evaluate("a1", sendIntent())
	if err != nil {
		t.Fatal(err)
	}
	if v.Trust != 66 {
		t.Fatalf("trust after first deny = %v, want 66", v.Trust)
	}
	if err := st1.Close(); err != nil {
		t.Fatal(err)
	}

	// A fresh process over the same database sees the same deny history, so
	// the repeat of the offense inside the window still costs 34 * 1.5 = 51.
	g2, st2 := openGovernor(t, path)
	defer st2.Close()
	v, err = g2.Evaluate("a1", sendIntent())
	if err != nil {
		t.Fatal(err)
	}
	if v.Trust != 15 {
		t.Fatalf("trust after restart deny = %v, want 15", v.Trust)
	}

	proj, err := g2.ReplayProjection()
	if err != nil {
		t.Fatal(err)
	}
	if replayed := proj.Agents["a1"]; replayed == nil || replayed.Trust != v.Trust {
		t.Fatalf("replay diverged from live state: %+v vs trust %v", replayed, v.Trust)
	}
}

func TestEvaluateRollsBackWhenInvestigationInsertFails(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1") // seq 1
	for i := 0; i < 2; i++ {
		if _, err := g.Evaluate("a1", sendIntent()); err != nil { // seq 2, 3
			t.Fatal(err)
		}
	}

	// The revoking decision would be seq 4 and open inv-a1-4. Occupying that
	// id makes the investigation insert fail mid-transaction.
	if _, err := g.store.DB().Exec(`
INSERT INTO investigations (id, agent_id, opened_at_seq, severity, breach_type, detection, evidence, status, opened_at, notes)
VALUES ('inv-a1-4', 'a1', 99, 'CRITICAL', 'TRUST_COLLAPSE', '[]', '{}', 'UNDER_INVESTIGATION', '2026-01-01T00:00:00Z', '')`); err != nil {
		t.Fatal(err)
	}

	if _, err := g.Evaluate("a1", sendIntent()); err == nil {
		t.Fatal("expected evaluation to fail")
	}

	// Nothing committed: no orphan chain entry, no trust consequence.
	if g.ledger.LastSeq() != 3 {
		t.Fatalf("ledger height = %d after rollback, want 3", g.ledger.LastSeq())
	}
	agent, err := g.Agent("a1")
	if err != nil {
		t.Fatal(err)
	}
	if agent.Revoked() || agent.Trust != 15 {
		t.Fatalf("agent state leaked from rolled-back evaluation: %+v", agent)
	}
	if res, err := g.VerifyChain(); err != nil || !res.Valid {
		t.Fatalf("chain after rollback: %+v, %v", res, err)
	}

	// With the collision cleared the same evaluation lands cleanly at seq 4.
	if _, err := g.store.DB().Exec(`DELETE FROM investigations WHERE id = 'inv-a1-4'`); err != nil {
		t.Fatal(err)
	}
	v, err := g.Evaluate("a1", sendIntent())
	if err != nil {
		t.Fatal(err)
	}
	if v.Seq != 4 || !v.Revoked {
		t.Fatalf("retry verdict: %+v", v)
	}
}

func TestPurgeIsAllOrNothing(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1") // seq 1
	issue(t, g, "a2") // seq 2

	// The sweep would append seq 3 for a1 and seq 4 for a2. Occupying
	// inv-a2-4 fails the second agent after the first already revoked.
	if _, err := g.store.DB().Exec(`
INSERT INTO investigations (id, agent_id, opened_at_seq, severity, breach_type, detection, evidence, status, opened_at, notes)
VALUES ('inv-a2-4', 'a2', 99, 'CRITICAL', 'GLOBAL_INCIDENT', '[]', '{}', 'UNDER_INVESTIGATION', '2026-01-01T00:00:00Z', '')`); err != nil {
		t.Fatal(err)
	}

	if _, err := g.Purge("incident"); err == nil {
		t.Fatal("expected purge to fail")
	}

	// The fleet is untouched, not half revoked.
	agents, err := g.Agents()
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range agents {
		if a.Revoked() || a.Trust != 100 {
			t.Fatalf("agent %s changed by rolled-back purge: %+v", a.ID, a)
		}
	}
	if g.ledger.LastSeq() != 2 {
		t.Fatalf("ledger height = %d after rollback, want 2", g.ledger.LastSeq())
	}

	if _, err := g.store.DB().Exec(`DELETE FROM investigations WHERE id = 'inv-a2-4'`); err != nil {
		t.Fatal(err)
	}
	n, err := g.Purge("incident")
	if err != nil || n != 2 {
		t.Fatalf("retry purge: n=%d err=%v", n, err)
	}
}

func TestReplayMatchesLiveState(t *testing.T) {
	g := newGovernor(t)
	issue(t, g, "a1")
	issue(t, g, "a2")
	issue(t, g, "a3")

	// A mixed workload: recovery, collapse, restore, and a purge.
	if _, err := g.Evaluate("a1", readIntent()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := g.Evaluate("a2", sendIntent()); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := g.Restore("a2", "cleared"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Evaluate("a2", readIntent()); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Purge("incident"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.ConfirmBreach("a3", "confirmed"); err != nil {
		t.Fatal(err)
	}

	if res, err := g.VerifyChain(); err != nil || !res.Valid {
		t.Fatalf("chain invalid: %+v err=%v", res, err)
	}

	proj, err := g.ReplayProjection()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	agents, err := g.Agents()
	if err != nil {
		t.Fatal(err)
	}
	if len(proj.Agents) != len(agents) {
		t.Fatalf("projection has %d agents, live has %d", len(proj.Agents), len(agents))
	}
	for _, live := range agents {
		replayed, ok := proj.Agents[live.ID]
		if !ok {
			t.Fatalf("agent %s missing from projection", live.ID)
		}
		if replayed.Trust != live.Trust || replayed.Level != live.Level ||
			replayed.Mode != live.Mode || replayed.Status != live.Status {
			t.Fatalf("agent %s diverged: live %+v, replayed %+v", live.ID, live, replayed)
		}
		if !replayed.UpdatedAt.Equal(live.UpdatedAt) {
			t.Fatalf("agent %s timestamps diverged: %v vs %v", live.ID, live.UpdatedAt, replayed.UpdatedAt)
		}
	}

	for id, replayed := range proj.Investigations {
		live, err := g.Investigation(replayed.AgentID)
		if err != nil {
			t.Fatalf("live investigation for %s: %v", replayed.AgentID, err)
		}
		// Compare against the matching record, not just the newest.
		if live.ID != id {
			history, err := g.InvestigationHistory(replayed.AgentID)
			if err != nil {
				t.Fatal(err)
			}
			live = nil
			for _, h := range history {
				if h.ID == id {
					live = h
					break
				}
			}
			if live == nil {
				t.Fatalf("investigation %s missing from live tables", id)
			}
		}
		if replayed.Status != live.Status || replayed.BreachType != live.BreachType ||
			replayed.Evidence.PreviousTrust != live.Evidence.PreviousTrust {
			t.Fatalf("investigation %s diverged: live %+v, replayed %+v", id, live, replayed)
		}
	}
}
