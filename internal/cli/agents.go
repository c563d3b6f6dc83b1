package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DHARANI2D/AEGIS/internal/store"
)

var agentsJSON bool

func init() {
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(agentCmd)
	agentsCmd.Flags().BoolVar(&agentsJSON, "json", false, "Output as JSON")
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List governed agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, cleanup, err := openStack()
		if err != nil {
			return err
		}
		defer cleanup()

		agents, err := gov.Agents()
		if err != nil {
			return err
		}
		if agentsJSON {
			return printJSON(agents)
		}

		fmt.Printf("%-24s %7s %5s  %-12s %-20s\n", "AGENT", "TRUST", "LEVEL", "MODE", "STATUS")
		for _, a := range agents {
			fmt.Printf("%-24s %7.1f %5d  %-12s %-20s\n", a.ID, a.Trust, a.Level, a.Mode, a.Status)
		}
		return nil
	},
}

var agentCmd = &cobra.Command{
	Use:   "agent <agent-id>",
	Short: "Show one agent with its investigation history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, cleanup, err := openStack()
		if err != nil {
			return err
		}
		defer cleanup()

		agent, err := gov.Agent(args[0])
		if err != nil {
			return err
		}
		history, err := gov.InvestigationHistory(args[0])
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		return printJSON(map[string]any{
			"agent":          agent,
			"investigations": history,
		})
	},
}
