package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/DHARANI2D/AEGIS/internal/policy"
	"github.com/DHARANI2D/AEGIS/internal/scenario"
)

var checkFormat string

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
}

var checkCmd = &cobra.Command{
	Use:     "check [scenario-glob...]",
	Aliases: []string{"scenario"},
	Short:   "Run rule-table assertions from scenario files",
	Long: "Loads scenario YAML files matching the given glob patterns, dry-runs each\n" +
		"case through the decision pipeline, and reports pass/fail. Without\n" +
		"arguments the builtin red-team scenarios are run.\n\n" +
		"Exit code 0 if all cases pass, 1 if any fail.\n" +
		"Use in CI to gate rule-table changes.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	var results []*scenario.RunResult

	if len(args) == 0 {
		snap, err := policy.Load(flagRules)
		if err != nil {
			return err
		}
		for _, s := range scenario.Builtin() {
			results = append(results, scenario.Run(s, snap))
		}
	} else {
		for _, pattern := range args {
			matches, err := filepath.Glob(pattern)
			if err != nil {
				return fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
			}
			if len(matches) == 0 {
				return fmt.Errorf("no scenario files match pattern: %s", pattern)
			}
			for _, path := range matches {
				r, err := scenario.LoadAndRun(path, flagRules)
				if err != nil {
					return err
				}
				results = append(results, r)
			}
		}
	}

	switch checkFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(scenario.FormatText(results))
	}

	for _, r := range results {
		if r.Failed > 0 {
			os.Exit(1)
		}
	}
	return nil
}
