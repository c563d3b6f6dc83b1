package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	aegismcp "github.com/DHARANI2D/AEGIS/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs aegis as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes governance tools: evaluate, check, agents, stats, logs, verify.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	gov, cleanup, err := openStack()
	if err != nil {
		return err
	}
	defer cleanup()

	srv := aegismcp.New(gov, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "aegis MCP server running on stdio")
	return srv.Run(ctx)
}
