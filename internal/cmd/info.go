package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/grokbox/grokbox/internal/store"
	"github.com/grokbox/grokbox/internal/vm"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show an instance's record and live state",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
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
		a.logger.WithInstance(name).Warn("state query failed", "error", err)
		status = vm.StatusUnknown
	}

	fmt.Printf("Name:      %s\n", rec.Name)
	fmt.Printf("VM:        %s\n", rec.VMName)
	fmt.Printf("Status:    %s\n", statusStyle(status).Render(string(status)))
	fmt.Printf("Codebase:  %s\n", describeCodebase(rec))
	if rec.GitBranch != "" {
		fmt.Printf("Branch:    %s\n", rec.GitBranch)
	}
	if rec.GitDepth > 0 {
		fmt.Printf("Depth:     %d\n", rec.GitDepth)
	}
	fmt.Printf("Port:      %d\n", rec.Port)
	fmt.Printf("Resources: %s memory, %s disk, %d CPUs\n", rec.Memory, rec.Disk, rec.CPUs)
	fmt.Printf("Ubuntu:    %s\n", rec.UbuntuVersion)
	fmt.Printf("Created:   %s (%s)\n", rec.Created.Local().Format("2006-01-02 15:04:05"), humanize.Time(rec.Created))

	if status == vm.StatusRunning {
		if ip, err := a.driver.IP(ctx, rec.VMName); err == nil && ip != "" {
			fmt.Printf("IP:        %s\n", ip)
			fmt.Printf("URL:       http://%s:%d/\n", ip, rec.Port)
		}
	}

	return nil
}

// describeCodebase renders the codebase column for info and list.
func describeCodebase(rec *store.Record) string {
	if rec.CodebaseType == store.CodebaseDemo {
		return "demo"
	}
	return rec.CodebasePath
}
