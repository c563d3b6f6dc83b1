// Package client is the Go client for a remote aegis governance server. An
// agent embeds it to ask for verdicts before acting.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/DHARANI2D/AEGIS/internal/governor"
	"github.com/DHARANI2D/AEGIS/internal/ledger"
	"github.com/DHARANI2D/AEGIS/internal/model"
)

// Client talks to an aegis governance server over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL, e.g. "http://localhost:8530".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aegis server returned %d: %s", e.Status, e.Message)
}

// Issued is a minted identity returned by Issue. The private key appears
// exactly once; the server does not retain it.
type Issued struct {
	AgentID    string `json:"agent_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// Evaluate submits an intent for a verdict. Fail-closed: an unreachable
// server yields a synthetic DENY rather than an error, so a governed agent
// never proceeds ungoverned. Verdicts the server actually rendered, and its
// explicit rejections, pass through as-is.
func (c *Client) Evaluate(ctx context.Context, agentID string, intent *model.Intent) (*model.Verdict, error) {
	body := map[string]any{"agent_id": agentID, "intent": intent}

	var verdict model.Verdict
	if err := c.do(ctx, http.MethodPost, "/evaluate", body, &verdict); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return &model.Verdict{
			Decision: model.Deny,
			Reason:   fmt.Sprintf("governance server unreachable: %v", err),
		}, nil
	}
	return &verdict, nil
}

// Issue mints an identity for a new agent.
func (c *Client) Issue(ctx context.Context, agentID string) (*Issued, error) {
	var issued Issued
	err := c.do(ctx, http.MethodPost, "/identity/issue", map[string]string{"agent_id": agentID}, &issued)
	if err != nil {
		return nil, err
	}
	return &issued, nil
}

// Agents lists all governed agents.
func (c *Client) Agents(ctx context.Context) ([]*model.Agent, error) {
	var agents []*model.Agent
	if err := c.do(ctx, http.MethodGet, "/agents", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// Agent fetches one agent by ID.
func (c *Client) Agent(ctx context.Context, agentID string) (*model.Agent, error) {
	var agent model.Agent
	if err := c.do(ctx, http.MethodGet, "/agents/"+url.PathEscape(agentID), nil, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// Investigation fetches the agent's most recent investigation.
func (c *Client) Investigation(ctx context.Context, agentID string) (*model.Investigation, error) {
	var inv model.Investigation
	if err := c.do(ctx, http.MethodGet, "/agents/"+url.PathEscape(agentID)+"/investigation", nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Restore returns a revoked agent to service.
func (c *Client) Restore(ctx context.Context, agentID, notes string) (*model.Agent, error) {
	var agent model.Agent
	err := c.do(ctx, http.MethodPost, "/agents/"+url.PathEscape(agentID)+"/restore",
		map[string]string{"notes": notes}, &agent)
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// ConfirmBreach permanently revokes an agent under investigation.
func (c *Client) ConfirmBreach(ctx context.Context, agentID, notes string) (*model.Agent, error) {
	var agent model.Agent
	err := c.do(ctx, http.MethodPost, "/agents/"+url.PathEscape(agentID)+"/confirm-breach",
		map[string]string{"notes": notes}, &agent)
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// Purge revokes the whole fleet and returns how many agents were revoked.
func (c *Client) Purge(ctx context.Context, reason string) (int, error) {
	var resp map[string]int
	if err := c.do(ctx, http.MethodPost, "/governance/purge", map[string]string{"reason": reason}, &resp); err != nil {
		return 0, err
	}
	return resp["revoked"], nil
}

// Stats fetches the fleet summary.
func (c *Client) Stats(ctx context.Context) (*governor.Stats, error) {
	var stats governor.Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Logs fetches the newest ledger entries, most recent first.
func (c *Client) Logs(ctx context.Context, limit int) ([]*ledger.Entry, error) {
	path := "/logs"
	if limit > 0 {
		path = fmt.Sprintf("/logs?limit=%d", limit)
	}
	var entries []*ledger.Entry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Verify asks the server to verify its hash chain.
func (c *Client) Verify(ctx context.Context) (*ledger.VerifyResult, error) {
	var result ledger.VerifyResult
	if err := c.do(ctx, http.MethodGet, "/audit/verify", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call governance server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = string(bytes.TrimSpace(data))
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
