package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/DHARANI2D/AEGIS/internal/model"
)

var (
	evalConfidence  float64
	evalEnvironment string
	evalPayload     string
	evalReasoning   string
	evalSignature   string
	evalFields      map[string]string
)

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().Float64Var(&evalConfidence, "confidence", 0.9, "Agent's confidence in the intent (0..1)")
	evaluateCmd.Flags().StringVar(&evalEnvironment, "environment", "production", "Target environment (production|staging|dev)")
	evaluateCmd.Flags().StringVar(&evalPayload, "payload", "", "Payload text to scan for sensitive data")
	evaluateCmd.Flags().StringVar(&evalReasoning, "reasoning", "", "Agent's stated reasoning")
	evaluateCmd.Flags().StringVar(&evalSignature, "signature", "", "Base64 signature over the intent name")
	evaluateCmd.Flags().StringToStringVar(&evalFields, "field", nil, "Intent field as key=value (repeatable)")
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <agent-id> <intent>",
	Short: "Evaluate one intent and record the verdict",
	Long: "Submits an intent through the full governance pipeline. The verdict is\n" +
		"appended to the audit ledger and moves the agent's trust score.\n\n" +
		"Exit code mirrors the verdict: 0 ALLOW, 1 DENY, 2 ESCALATE.",
	Args: cobra.ExactArgs(2),
	RunE: runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	gov, cleanup, err := openStack()
	if err != nil {
		return err
	}
	defer cleanup()

	verdict, err := gov.Evaluate(args[0], &model.Intent{
		Name:        args[1],
		Confidence:  evalConfidence,
		Reasoning:   evalReasoning,
		Payload:     evalPayload,
		Environment: model.Environment(evalEnvironment),
		Fields:      evalFields,
		Signature:   evalSignature,
	})
	if err != nil {
		return err
	}

	if err := printJSON(verdict); err != nil {
		return err
	}
	cleanup()

	switch verdict.Decision {
	case model.Deny:
		os.Exit(1)
	case model.Escalate:
		os.Exit(2)
	}
	return nil
}
