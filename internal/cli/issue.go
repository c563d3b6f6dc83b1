package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(issueCmd)
}

var issueCmd = &cobra.Command{
	Use:   "issue <agent-id>",
	Short: "Issue a signed identity for a new agent",
	Long: "Mints an ed25519 identity, registers the agent at full trust, and records\n" +
		"the issuance in the audit ledger. The private key is printed once and not\n" +
		"retained; the agent uses it to sign intent names.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, cleanup, err := openStack()
		if err != nil {
			return err
		}
		defer cleanup()

		issued, err := gov.IssueIdentity(args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]string{
			"agent_id":    issued.AgentID,
			"public_key":  issued.PublicKey,
			"private_key": issued.PrivateKey,
		})
	},
}
