package cmd

import (
	"fmt"
	"os"

	"github.com/grokbox/grokbox/internal/vm"
	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex <name>",
	Short: "Rebuild an instance's search index",
	Long: `Reindex re-runs the in-guest indexer over the instance's codebase.
Useful after editing a locally-sourced codebase or to pick up config
changes inside the guest.`,
	Args: cobra.ExactArgs(1),
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.loadInstance(name)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	status, err := a.driver.State(ctx, rec.VMName)
	if err != nil {
		return err
	}
	if status != vm.StatusRunning {
		return fmt.Errorf("instance '%s' is not running; run 'grokbox start %s' first", name, name)
	}

	fmt.Printf("Reindexing instance '%s'...\n", name)
	out, err := a.driver.Exec(ctx, rec.VMName, []string{"sudo", "grok-reindex"})
	if len(out) > 0 {
		_, _ = os.Stdout.Write(out)
	}
	if err != nil {
		return err
	}

	fmt.Println("Reindex complete.")
	return nil
}
