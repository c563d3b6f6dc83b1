package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/DHARANI2D/AEGIS/internal/governor"
	"github.com/DHARANI2D/AEGIS/internal/ledger"
	"github.com/DHARANI2D/AEGIS/internal/model"
	"github.com/DHARANI2D/AEGIS/internal/server"
	"github.com/DHARANI2D/AEGIS/internal/store"
)

func newTestClient(t *testing.T) *Client {
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

	ts := httptest.NewServer(server.New(gov, server.Config{}).Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL)
}

func TestIssueAndEvaluate(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	issued, err := c.Issue(ctx, "worker-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.AgentID != "worker-1" || issued.PrivateKey == "" {
		t.Fatalf("issued = %+v", issued)
	}

	verdict, err := c.Evaluate(ctx, "worker-1", &model.Intent{
		Name:        "READ.LOGS",
		Confidence:  0.9,
		Environment: "dev",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if verdict.Decision != model.Allow || verdict.Trust != 100 {
		t.Fatalf("verdict = %+v", verdict)
	}
}

func TestEvaluateServerRejectionPassesThrough(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Evaluate(context.Background(), "ghost", &model.Intent{
		Name:        "READ.LOGS",
		Confidence:  0.9,
		Environment: "dev",
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != 404 {
		t.Fatalf("status = %d", apiErr.Status)
	}
}

func TestEvaluateFailsClosedWhenUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1")

	verdict, err := c.Evaluate(context.Background(), "worker-1", &model.Intent{
		Name:        "READ.LOGS",
		Confidence:  0.9,
		Environment: "dev",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Decision != model.Deny {
		t.Fatalf("expected synthetic DENY, got %+v", verdict)
	}
}

func TestFleetLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2"} {
		if _, err := c.Issue(ctx, id); err != nil {
			t.Fatalf("issue %s: %v", id, err)
		}
	}

	agents, err := c.Agents(ctx)
	if err != nil {
		t.Fatalf("agents: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("agents = %+v", agents)
	}

	revoked, err := c.Purge(ctx, "drill")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("revoked = %d", revoked)
	}

	inv, err := c.Investigation(ctx, "a1")
	if err != nil {
		t.Fatalf("investigation: %v", err)
	}
	if inv.Status != model.StatusUnderInvestigation {
		t.Fatalf("investigation = %+v", inv)
	}

	agent, err := c.Restore(ctx, "a1", "drill over")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if agent.Revoked() {
		t.Fatalf("agent still revoked: %+v", agent)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAgents != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	result, err := c.Verify(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Valid {
		t.Fatalf("chain invalid: %+v", result)
	}

	entries, err := c.Logs(ctx, 3)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
}
