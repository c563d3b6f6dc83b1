package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	purgeReason  string
	resolveNotes string
)

func init() {
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(confirmBreachCmd)

	purgeCmd.Flags().StringVar(&purgeReason, "reason", "", "Why the fleet is being revoked (required)")
	purgeCmd.MarkFlagRequired("reason")

	restoreCmd.Flags().StringVar(&resolveNotes, "notes", "", "Resolution notes recorded on the investigation")
	confirmBreachCmd.Flags().StringVar(&resolveNotes, "notes", "", "Resolution notes recorded on the investigation")
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Revoke every agent in the fleet",
	Long: "The emergency stop. Atomically revokes all agents so no verdict other\n" +
		"than DENY can be produced until operators restore agents individually.",
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, cleanup, err := openStack()
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := gov.Purge(purgeReason)
		if err != nil {
			return err
		}
		fmt.Printf("revoked %d agents\n", n)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <agent-id>",
	Short: "Restore a revoked agent to service",
	Long: "Closes the agent's open investigation as a false positive and returns\n" +
		"the agent to its pre-revocation trust. Fails if no investigation is open.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, cleanup, err := openStack()
		if err != nil {
			return err
		}
		defer cleanup()

		agent, err := gov.Restore(args[0], resolveNotes)
		if err != nil {
			return err
		}
		return printJSON(agent)
	},
}

var confirmBreachCmd = &cobra.Command{
	Use:   "confirm-breach <agent-id>",
	Short: "Confirm a breach and permanently revoke the agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, cleanup, err := openStack()
		if err != nil {
			return err
		}
		defer cleanup()

		agent, err := gov.ConfirmBreach(args[0], resolveNotes)
		if err != nil {
			return err
		}
		return printJSON(agent)
	},
}
