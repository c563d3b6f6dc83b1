// Package mcp exposes the governance core as MCP tools over stdio, so an
// agent runtime can ask for verdicts the same way it calls any other tool.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DHARANI2D/AEGIS/internal/governor"
)

// Server wraps the MCP SDK server around a governor.
type Server struct {
	mcpServer *mcpsdk.Server
	gov       *governor.Governor
}

// New creates an MCP server over an already constructed governor.
func New(gov *governor.Governor, version string) *Server {
	s := &Server{gov: gov}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "aegis",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all aegis tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "aegis_evaluate",
		Description: "Evaluate a proposed agent action. The verdict is recorded in the audit ledger and affects the agent's trust score. Denied actions return an error with the reason.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "aegis_check",
		Description: "Check what verdict an action would receive without recording it or touching trust (dry-run).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "aegis_agents",
		Description: "List all governed agents with their trust scores and isolation state.",
	}, s.handleAgents)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "aegis_stats",
		Description: "Fleet-level governance summary: agent counts, average trust, interventions, pending reviews.",
	}, s.handleStats)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "aegis_logs",
		Description: "Read the newest audit ledger entries, most recent first.",
	}, s.handleLogs)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "aegis_verify",
		Description: "Verify the audit ledger's hash chain from genesis.",
	}, s.handleVerify)
}
