package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/DHARANI2D/AEGIS/internal/policy"
)

var (
	initDir   string
	initForce bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initDir, "dir", "", "Config directory (default ~/.aegis)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap aegis configuration",
	Long: "Creates the config directory with a commented rule table and an example\n" +
		"scenario file. Existing files are left untouched unless --force is given.",
	RunE: runInit,
}

const exampleScenario = `# Example rule-table assertions. Run with:
#   aegis check ~/.aegis/scenarios/*.yaml
name: example
cases:
  - intent: READ.LOGS
    environment: dev
    expect: ALLOW
  - intent: DELETE.SYSTEM_CORE
    expect: DENY
    note: constitutional prohibition
  - intent: EXECUTE.SHELL
    environment: dev
    expect: ESCALATE
`

func runInit(cmd *cobra.Command, args []string) error {
	dir := initDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".aegis")
	}

	scenariosDir := filepath.Join(dir, "scenarios")
	if err := os.MkdirAll(scenariosDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	var created []string
	files := []struct {
		path    string
		content string
	}{
		{filepath.Join(dir, "rules.yaml"), policy.DefaultSnapshotYAML()},
		{filepath.Join(scenariosDir, "example.yaml"), exampleScenario},
	}
	for _, f := range files {
		wrote, err := writeIfMissing(f.path, f.content)
		if err != nil {
			return err
		}
		if wrote {
			created = append(created, f.path)
		}
	}

	if len(created) == 0 {
		fmt.Println("Nothing to do; config already exists. Use --force to overwrite.")
		return nil
	}
	fmt.Println("Created:")
	for _, p := range created {
		fmt.Printf("  %s\n", p)
	}
	fmt.Printf("\nNext steps:\n  aegis serve --rules %s\n  aegis check %s\n",
		filepath.Join(dir, "rules.yaml"), filepath.Join(scenariosDir, "*.yaml"))
	return nil
}

// writeIfMissing writes content unless the file exists and --force is unset.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
