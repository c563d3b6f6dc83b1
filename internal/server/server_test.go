package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DHARANI2D/AEGIS/internal/governor"
	"github.com/DHARANI2D/AEGIS/internal/ledger"
	"github.com/DHARANI2D/AEGIS/internal/model"
	"github.com/DHARANI2D/AEGIS/internal/store"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
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
	gov, err := governor.New(st, led, governor.Options{})
	if err != nil {
		t.Fatalf("new governor: %v", err)
	}

	srv := New(gov, Config{Port: 0})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func post(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func issueAgent(t *testing.T, ts *httptest.Server, id string) {
	t.Helper()
	resp := post(t, ts, "/identity/issue", map[string]string{"agent_id": id})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("issue %s: status %d", id, resp.StatusCode)
	}
}

func revokeAgent(t *testing.T, ts *httptest.Server, id string) {
	t.Helper()
	for i := 0; i < 3; i++ {
		resp := post(t, ts, "/evaluate", map[string]any{
			"agent_id": id,
			"intent": map[string]any{
				"name":        "SEND.EXTERNAL_REQUEST",
				"confidence":  0.9,
				"environment": "production",
				"fields":      map[string]string{"url": "https://example.com"},
			},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("evaluate: status %d", resp.StatusCode)
		}
	}
}

func TestIssueAndEvaluate(t *testing.T) {
	_, ts := newTestServer(t)

	resp := post(t, ts, "/identity/issue", map[string]string{"agent_id": "a1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var issued map[string]string
	decode(t, resp, &issued)
	if issued["public_key"] == "" || issued["private_key"] == "" {
		t.Fatalf("issued = %v", issued)
	}

	resp = post(t, ts, "/evaluate", map[string]any{
		"agent_id": "a1",
		"intent": map[string]any{
			"name":        "READ.LOGS",
			"confidence":  0.9,
			"environment": "dev",
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var verdict model.Verdict
	decode(t, resp, &verdict)
	if verdict.Decision != model.Allow || verdict.Trust != 100 {
		t.Fatalf("verdict = %+v", verdict)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestEvaluateErrors(t *testing.T) {
	_, ts := newTestServer(t)
	issueAgent(t, ts, "a1")

	cases := []struct {
		name string
		body any
		want int
	}{
		{"unknown agent", map[string]any{
			"agent_id": "ghost",
			"intent":   map[string]any{"name": "READ.LOGS", "confidence": 0.9, "environment": "dev"},
		}, http.StatusNotFound},
		{"bad confidence", map[string]any{
			"agent_id": "a1",
			"intent":   map[string]any{"name": "READ.LOGS", "confidence": 2.0, "environment": "dev"},
		}, http.StatusBadRequest},
		{"unknown field", map[string]any{
			"agent_id": "a1",
			"bogus":    true,
		}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := post(t, ts, "/evaluate", tc.body)
		if resp.StatusCode != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.want)
		}
	}
}

func TestDuplicateIssueConflicts(t *testing.T) {
	_, ts := newTestServer(t)
	issueAgent(t, ts, "a1")

	resp := post(t, ts, "/identity/issue", map[string]string{"agent_id": "a1"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestAgentEndpoints(t *testing.T) {
	_, ts := newTestServer(t)
	issueAgent(t, ts, "a1")
	issueAgent(t, ts, "a2")

	resp := get(t, ts, "/agents")
	var agents []*model.Agent
	decode(t, resp, &agents)
	if len(agents) != 2 {
		t.Fatalf("agents = %d", len(agents))
	}

	resp = get(t, ts, "/agents/a1")
	var agent model.Agent
	decode(t, resp, &agent)
	if agent.ID != "a1" || agent.Status != model.StatusActive {
		t.Fatalf("agent = %+v", agent)
	}

	if resp := get(t, ts, "/agents/ghost"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("ghost status = %d", resp.StatusCode)
	}
}

func TestInvestigationLifecycleOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)
	issueAgent(t, ts, "a1")

	// Restoring with no investigation is a conflict.
	if resp := post(t, ts, "/agents/a1/restore", map[string]string{"notes": "n"}); resp.StatusCode != http.StatusConflict {
		t.Fatalf("premature restore: status = %d", resp.StatusCode)
	}

	revokeAgent(t, ts, "a1")

	resp := get(t, ts, "/agents/a1/investigation")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("investigation: status = %d", resp.StatusCode)
	}
	var inv model.Investigation
	decode(t, resp, &inv)
	if inv.Status != model.StatusUnderInvestigation {
		t.Fatalf("investigation = %+v", inv)
	}

	resp = post(t, ts, "/agents/a1/restore", map[string]string{"notes": "false positive"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore: status = %d", resp.StatusCode)
	}
	var agent model.Agent
	decode(t, resp, &agent)
	if agent.Status != model.StatusActive || agent.Trust != 100 {
		t.Fatalf("restored agent = %+v", agent)
	}

	resp = get(t, ts, "/agents/a1/investigations")
	var history []*model.Investigation
	decode(t, resp, &history)
	if len(history) != 1 || history[0].Status != model.StatusRestored {
		t.Fatalf("history = %+v", history)
	}
}

func TestConfirmBreachOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)
	issueAgent(t, ts, "a1")
	revokeAgent(t, ts, "a1")

	resp := post(t, ts, "/agents/a1/confirm-breach", map[string]string{"notes": "confirmed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: status = %d", resp.StatusCode)
	}
	var agent model.Agent
	decode(t, resp, &agent)
	if agent.Status != model.StatusRevoked {
		t.Fatalf("agent = %+v", agent)
	}

	// Terminal investigation: restore now conflicts.
	if resp := post(t, ts, "/agents/a1/restore", map[string]string{"notes": "undo"}); resp.StatusCode != http.StatusConflict {
		t.Fatalf("restore after confirm: status = %d", resp.StatusCode)
	}
}

func TestPurgeStatsAndLogs(t *testing.T) {
	_, ts := newTestServer(t)
	issueAgent(t, ts, "a1")
	issueAgent(t, ts, "a2")

	resp := post(t, ts, "/governance/purge", map[string]string{"reason": "incident"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("purge: status = %d", resp.StatusCode)
	}
	var purge map[string]int
	decode(t, resp, &purge)
	if purge["revoked"] != 2 {
		t.Fatalf("purge = %v", purge)
	}

	resp = get(t, ts, "/stats")
	var stats governor.Stats
	decode(t, resp, &stats)
	if stats.TotalAgents != 2 || stats.ActiveAgents != 0 || stats.PendingReviews != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	resp = get(t, ts, "/logs?limit=2")
	var entries []*ledger.Entry
	decode(t, resp, &entries)
	if len(entries) != 2 || entries[0].Kind != ledger.KindPurge {
		t.Fatalf("entries = %+v", entries)
	}

	if resp := get(t, ts, "/logs?limit=zero"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: status = %d", resp.StatusCode)
	}
}

func TestVerifyAndHealth(t *testing.T) {
	_, ts := newTestServer(t)
	issueAgent(t, ts, "a1")

	resp := get(t, ts, "/audit/verify")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: status = %d", resp.StatusCode)
	}
	var result ledger.VerifyResult
	decode(t, resp, &result)
	if !result.Valid || result.Entries != 1 {
		t.Fatalf("verify = %+v", result)
	}

	resp = get(t, ts, "/health")
	var health map[string]string
	decode(t, resp, &health)
	if health["status"] != "ok" {
		t.Fatalf("health = %v", health)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp := get(t, ts, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: status = %d", resp.StatusCode)
	}
}

// emptySHA is the hash reported when the builtin rule table is active.
const emptySHA = "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestReloadRules(t *testing.T) {
	srv, ts := newTestServer(t)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	rules := `
version: "42"
confidence_threshold: 0.9
rules:
  - intent: "READ.*"
    allowed: true
    risk_level: LOW
`
	if err := os.WriteFile(path, []byte(rules), 0600); err != nil {
		t.Fatal(err)
	}
	srv.cfg.RulesPath = path

	if err := srv.ReloadRules(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	resp := get(t, ts, "/health")
	var health map[string]string
	decode(t, resp, &health)
	if health["rule_hash"] == "" || health["rule_hash"] == emptySHA {
		t.Fatalf("rule hash not updated: %v", health)
	}
}

func TestReloaderWatchesFile(t *testing.T) {
	srv, ts := newTestServer(t)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("version: \"1\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	srv.cfg.RulesPath = path

	reloader, err := NewReloader(srv, []string{path, "", "/nonexistent/rules.yaml"})
	if err != nil {
		t.Fatalf("new reloader: %v", err)
	}
	if len(reloader.paths) != 1 {
		t.Fatalf("watched paths = %v", reloader.paths)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- reloader.Run(ctx) }()

	if err := os.WriteFile(path, []byte("version: \"2\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := get(t, ts, "/health")
		var health map[string]string
		decode(t, resp, &health)
		if health["rule_hash"] != emptySHA && health["rule_hash"] != "" {
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("reloader run: %v", err)
			}
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("rule table was not hot-reloaded")
}
