package cmd

import (
	"fmt"

	"github.com/grokbox/grokbox/internal/errors"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Print an instance's state",
	Long: `Status prints exactly one of: running, stopped, unknown, not found.
"not found" also exits non-zero, so scripts can test for existence.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.store.Load(name)
	if err != nil {
		var notFound *errors.NotFoundError
		if errors.As(err, &notFound) {
			fmt.Println("not found")
			return ErrSilent
		}
		return err
	}

	status, err := a.driver.State(cmd.Context(), rec.VMName)
	if err != nil {
		return err
	}

	fmt.Println(status)
	return nil
}
