package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DHARANI2D/AEGIS/internal/model"
	"github.com/DHARANI2D/AEGIS/internal/policy"
	"github.com/DHARANI2D/AEGIS/internal/scanner"
)

// --- Input/Output types ---

// EvaluateInput defines parameters for the aegis_evaluate tool.
type EvaluateInput struct {
	AgentID     string            `json:"agent_id" jsonschema:"id of the governed agent"`
	Intent      string            `json:"intent" jsonschema:"namespaced intent name, e.g. READ.PII"`
	Confidence  float64           `json:"confidence" jsonschema:"self-reported confidence in [0,1]"`
	Environment string            `json:"environment" jsonschema:"target environment (production/staging/dev)"`
	Payload     string            `json:"payload,omitempty" jsonschema:"outbound data to scan for sensitive content"`
	Reasoning   string            `json:"reasoning,omitempty" jsonschema:"agent's stated reason for the action"`
	Fields      map[string]string `json:"fields,omitempty" jsonschema:"structured intent fields"`
	Signature   string            `json:"signature,omitempty" jsonschema:"base64 ed25519 signature over the intent name"`
}

// EvaluateOutput is the recorded verdict.
type EvaluateOutput struct {
	Decision string          `json:"decision"`
	Reason   string          `json:"reason"`
	Risk     string          `json:"risk_level"`
	Seq      int64           `json:"seq"`
	Trust    float64         `json:"trust"`
	Level    int             `json:"level"`
	Mode     string          `json:"mode"`
	Revoked  bool            `json:"revoked,omitempty"`
	Findings []model.Finding `json:"findings,omitempty"`
}

// CheckInput defines parameters for the aegis_check dry-run tool.
type CheckInput struct {
	Intent      string            `json:"intent" jsonschema:"namespaced intent name"`
	Confidence  float64           `json:"confidence" jsonschema:"self-reported confidence in [0,1]"`
	Environment string            `json:"environment" jsonschema:"target environment"`
	Payload     string            `json:"payload,omitempty" jsonschema:"outbound data to scan"`
	Fields      map[string]string `json:"fields,omitempty" jsonschema:"structured intent fields"`
}

// CheckOutput contains the dry-run decision.
type CheckOutput struct {
	Decision string          `json:"decision"`
	Reason   string          `json:"reason"`
	Risk     string          `json:"risk_level"`
	RuleID   string          `json:"rule_id,omitempty"`
	Findings []model.Finding `json:"findings,omitempty"`
}

// AgentsInput is empty.
type AgentsInput struct{}

// AgentsOutput lists every governed agent.
type AgentsOutput struct {
	Agents []AgentItem `json:"agents"`
}

// AgentItem is one agent's governance state.
type AgentItem struct {
	ID     string  `json:"id"`
	Trust  float64 `json:"trust"`
	Level  int     `json:"level"`
	Mode   string  `json:"mode"`
	Status string  `json:"status"`
}

// StatsInput is empty.
type StatsInput struct{}

// StatsOutput is the fleet summary.
type StatsOutput struct {
	TotalAgents    int     `json:"total_agents"`
	ActiveAgents   int     `json:"active_agents"`
	AverageTrust   float64 `json:"average_trust"`
	Interventions  int64   `json:"interventions"`
	PendingReviews int64   `json:"pending_reviews"`
	LedgerHeight   int64   `json:"ledger_height"`
}

// LogsInput defines parameters for the aegis_logs tool.
type LogsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum entries to return (default 20)"`
}

// LogsOutput lists ledger entries.
type LogsOutput struct {
	Entries []LogItem `json:"entries"`
}

// LogItem is one ledger entry.
type LogItem struct {
	Seq      int64  `json:"seq"`
	Kind     string `json:"kind"`
	AgentID  string `json:"agent_id"`
	Intent   string `json:"intent,omitempty"`
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason"`
	Risk     string `json:"risk_level,omitempty"`
	At       string `json:"at"`
}

// VerifyInput is empty.
type VerifyInput struct{}

// VerifyOutput reports chain integrity.
type VerifyOutput struct {
	Valid   bool   `json:"valid"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
	BadSeq  int64  `json:"bad_seq,omitempty"`
}

// --- Handlers ---

func (s *Server) handleEvaluate(ctx context.Context, req *mcpsdk.CallToolRequest, input EvaluateInput) (*mcpsdk.CallToolResult, EvaluateOutput, error) {
	verdict, err := s.gov.Evaluate(input.AgentID, &model.Intent{
		Name:        input.Intent,
		Confidence:  input.Confidence,
		Reasoning:   input.Reasoning,
		Payload:     input.Payload,
		Environment: model.Environment(input.Environment),
		Fields:      input.Fields,
		Signature:   input.Signature,
	})
	if err != nil {
		return nil, EvaluateOutput{}, err
	}

	out := EvaluateOutput{
		Decision: string(verdict.Decision),
		Reason:   verdict.Reason,
		Risk:     string(verdict.RiskLevel),
		Seq:      verdict.Seq,
		Trust:    verdict.Trust,
		Level:    verdict.Level,
		Mode:     string(verdict.Mode),
		Revoked:  verdict.Revoked,
		Findings: verdict.Findings,
	}
	if verdict.Decision != model.Allow {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	snap, _ := s.gov.Policy()
	res := policy.Evaluate(&model.Intent{
		Name:        input.Intent,
		Confidence:  input.Confidence,
		Environment: model.Environment(input.Environment),
		Fields:      input.Fields,
	}, snap)

	decision, reason := res.Decision, res.Reason
	findings := scanner.Scan(input.Payload, nil)
	if sev := scanner.MaxSeverity(findings); model.RiskRank[sev] >= model.RiskRank[model.RiskHigh] && decision != model.Deny {
		decision = model.Deny
		reason = "sensitive data detected in payload"
	}

	return nil, CheckOutput{
		Decision: string(decision),
		Reason:   reason,
		Risk:     string(res.RiskLevel),
		RuleID:   res.RuleID,
		Findings: findings,
	}, nil
}

func (s *Server) handleAgents(ctx context.Context, req *mcpsdk.CallToolRequest, input AgentsInput) (*mcpsdk.CallToolResult, AgentsOutput, error) {
	agents, err := s.gov.Agents()
	if err != nil {
		return nil, AgentsOutput{}, err
	}

	items := make([]AgentItem, len(agents))
	for i, a := range agents {
		items[i] = AgentItem{
			ID:     a.ID,
			Trust:  a.Trust,
			Level:  a.Level,
			Mode:   string(a.Mode),
			Status: string(a.Status),
		}
	}
	return nil, AgentsOutput{Agents: items}, nil
}

func (s *Server) handleStats(ctx context.Context, req *mcpsdk.CallToolRequest, input StatsInput) (*mcpsdk.CallToolResult, StatsOutput, error) {
	stats, err := s.gov.Stats()
	if err != nil {
		return nil, StatsOutput{}, err
	}
	return nil, StatsOutput{
		TotalAgents:    stats.TotalAgents,
		ActiveAgents:   stats.ActiveAgents,
		AverageTrust:   stats.AverageTrust,
		Interventions:  stats.Interventions,
		PendingReviews: stats.PendingReviews,
		LedgerHeight:   stats.LedgerHeight,
	}, nil
}

func (s *Server) handleLogs(ctx context.Context, req *mcpsdk.CallToolRequest, input LogsInput) (*mcpsdk.CallToolResult, LogsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.gov.Logs(limit)
	if err != nil {
		return nil, LogsOutput{}, err
	}

	items := make([]LogItem, len(entries))
	for i, e := range entries {
		items[i] = LogItem{
			Seq:      e.Seq,
			Kind:     string(e.Kind),
			AgentID:  e.AgentID,
			Intent:   e.Intent,
			Decision: string(e.Decision),
			Reason:   e.Reason,
			Risk:     string(e.RiskLevel),
			At:       e.Time().Format(time.RFC3339),
		}
	}
	return nil, LogsOutput{Entries: items}, nil
}

func (s *Server) handleVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input VerifyInput) (*mcpsdk.CallToolResult, VerifyOutput, error) {
	result, err := s.gov.VerifyChain()
	if err != nil && result.Error == "" {
		return nil, VerifyOutput{}, err
	}

	out := VerifyOutput{
		Valid:   result.Valid,
		Entries: result.Entries,
		Error:   result.Error,
		BadSeq:  result.BadSeq,
	}
	if !result.Valid {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}
