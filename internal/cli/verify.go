package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DHARANI2D/AEGIS/internal/ledger"
)

var verifyReplay bool

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyReplay, "replay", false, "Also replay the ledger and compare against live agent state")
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit ledger's hash chain",
	Long: "Recomputes the hash chain from genesis and compares every stored hash.\n" +
		"With --replay, additionally rebuilds agent state from the chain and\n" +
		"reports any divergence from the live tables.\n\n" +
		"Exit code 0 if the chain is intact (and replay matches), 1 otherwise.",
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	gov, cleanup, err := openStack()
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := gov.VerifyChain()
	var integrity *ledger.IntegrityError
	if err != nil && !errors.As(err, &integrity) {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if !result.Valid {
		cleanup()
		os.Exit(1)
	}
	if !verifyReplay {
		return nil
	}

	proj, err := gov.ReplayProjection()
	if err != nil {
		return err
	}
	live, err := gov.Agents()
	if err != nil {
		return err
	}

	var drift []string
	seen := make(map[string]bool)
	for _, a := range live {
		seen[a.ID] = true
		p, ok := proj.Agents[a.ID]
		if !ok {
			drift = append(drift, fmt.Sprintf("agent %s exists live but not in the chain", a.ID))
			continue
		}
		if p.Trust != a.Trust || p.Level != a.Level || p.Mode != a.Mode || p.Status != a.Status {
			drift = append(drift, fmt.Sprintf("agent %s: live trust=%.1f level=%d mode=%s status=%s, replay trust=%.1f level=%d mode=%s status=%s",
				a.ID, a.Trust, a.Level, a.Mode, a.Status, p.Trust, p.Level, p.Mode, p.Status))
		}
	}
	for id := range proj.Agents {
		if !seen[id] {
			drift = append(drift, fmt.Sprintf("agent %s exists in the chain but not live", id))
		}
	}

	if len(drift) > 0 {
		fmt.Fprintln(os.Stderr, "replay drift detected:")
		for _, d := range drift {
			fmt.Fprintf(os.Stderr, "  %s\n", d)
		}
		cleanup()
		os.Exit(1)
	}

	fmt.Printf("replay matches live state for %d agents\n", len(live))
	return nil
}
