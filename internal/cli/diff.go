package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DHARANI2D/AEGIS/internal/policy"
	"github.com/DHARANI2D/AEGIS/internal/policydiff"
)

var diffFormat string

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
}

var diffCmd = &cobra.Command{
	Use:   "diff <old-rules.yaml> <new-rules.yaml>",
	Short: "Compare two rule table files",
	Long: "Shows what a rule-table change does before it is deployed: rules added,\n" +
		"removed or reclassified, threshold moves annotated stricter/looser, and\n" +
		"prohibition changes.\n\n" +
		"Exit code 0 if the tables are equivalent, 1 if they differ.",
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	old, err := policy.Load(args[0])
	if err != nil {
		return err
	}
	new, err := policy.Load(args[1])
	if err != nil {
		return err
	}

	r := policydiff.Diff(old, new)
	r.OldPath, r.NewPath = args[0], args[1]

	switch diffFormat {
	case "json":
		out, err := policydiff.FormatJSON(r)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(policydiff.FormatText(r))
	}

	if r.HasChanges {
		os.Exit(1)
	}
	return nil
}
