package cmd

import (
	"fmt"

	"github.com/grokbox/grokbox/internal/vm"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Stop a running instance",
	Long: `Stop shuts down the instance's VM. The instance record and everything
inside the VM are kept, so a later 'grokbox start' resumes it without
re-provisioning.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
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
	switch status {
	case vm.StatusStopped:
		fmt.Printf("Instance '%s' is already stopped.\n", name)
		return nil
	case vm.StatusUnknown:
		return fmt.Errorf("the VM backing instance '%s' was not found; run 'grokbox destroy %s' to clean up", name, name)
	}

	if err := a.driver.Stop(ctx, rec.VMName); err != nil {
		return err
	}

	fmt.Printf("Instance '%s' stopped.\n", name)
	return nil
}
