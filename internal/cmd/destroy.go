package cmd

import (
	"fmt"

	"github.com/grokbox/grokbox/internal/errors"
	"github.com/spf13/cobra"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy <name>",
	Short: "Delete an instance's VM and record",
	Long: `Destroy purges the instance's VM and removes its record. A missing VM
is tolerated so a half-dead instance can always be cleaned up.`,
	Args: cobra.ExactArgs(1),
	RunE: runDestroy,
}

func init() {
	rootCmd.AddCommand(destroyCmd)
}

func runDestroy(cmd *cobra.Command, args []string) error {
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

	lock, err := a.store.Lock(name)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	if err := a.driver.Delete(cmd.Context(), rec.VMName, true); err != nil {
		if !errors.Is(err, errors.ErrVMNotFound) {
			return err
		}
		a.logger.WithInstance(name).Warn("vm already gone, removing record anyway", "vm", rec.VMName)
	}

	if err := a.store.Delete(name); err != nil {
		return err
	}

	fmt.Printf("Instance '%s' destroyed.\n", name)
	return nil
}
