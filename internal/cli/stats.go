package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logsLimit int
var logsJSON bool

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "Maximum number of entries")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Output as JSON")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the fleet governance summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, cleanup, err := openStack()
		if err != nil {
			return err
		}
		defer cleanup()

		stats, err := gov.Stats()
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Read the newest audit ledger entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, cleanup, err := openStack()
		if err != nil {
			return err
		}
		defer cleanup()

		entries, err := gov.Logs(logsLimit)
		if err != nil {
			return err
		}
		if logsJSON {
			return printJSON(entries)
		}

		fmt.Printf("%5s  %-15s %-20s %-26s %-9s %s\n", "SEQ", "KIND", "AGENT", "INTENT", "DECISION", "REASON")
		for _, e := range entries {
			fmt.Printf("%5d  %-15s %-20s %-26s %-9s %s\n", e.Seq, e.Kind, e.AgentID, e.Intent, e.Decision, e.Reason)
		}
		return nil
	},
}
