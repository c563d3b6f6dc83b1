// Package cli implements the aegis command tree.
package cli

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/DHARANI2D/AEGIS/internal/logging"
)

var (
	flagDB        string
	flagRules     string
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Governance decision core for autonomous AI agents",
	Long: "Evaluates agent intents against a deterministic rule table, scans payloads\n" +
		"for sensitive data, tracks per-agent trust with progressive isolation, and\n" +
		"records every verdict in a hash-chained audit ledger.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		logging.Init(logging.Config{
			Format:    flagLogFormat,
			Level:     flagLogLevel,
			Component: "aegis",
		})
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", defaultDBPath(), "Path to the state database")
	rootCmd.PersistentFlags().StringVar(&flagRules, "rules", os.Getenv("AEGIS_RULES"), "Path to rule table YAML (builtin table when empty)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "auto", "Log format (json|console|auto)")
}

func defaultDBPath() string {
	if p := os.Getenv("AEGIS_DB"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "aegis.db"
	}
	return filepath.Join(home, ".aegis", "aegis.db")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
