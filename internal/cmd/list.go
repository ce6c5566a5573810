package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/grokbox/grokbox/internal/vm"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all instances",
	Long: `List shows every instance with its live VM state. An instance whose VM
has vanished (deleted outside grokbox) shows as unknown; destroy it to
clean up the leftover record.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

const maxCodebaseWidth = 48

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.store.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No instances. Run 'grokbox start <name> [codebase]' to create one.")
		return nil
	}

	ctx := cmd.Context()

	// Column 1 holds the status so StyleFunc can color it per row.
	statuses := make([]vm.Status, len(records))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col == 1 {
				return statusStyle(statuses[row]).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("NAME", "STATUS", "PORT", "IP", "CODEBASE")

	for i, rec := range records {
		status, err := a.driver.State(ctx, rec.VMName)
		if err != nil {
			a.logger.WithInstance(rec.Name).Warn("state query failed", "error", err)
			status = vm.StatusUnknown
		}
		statuses[i] = status

		ip := ""
		if status == vm.StatusRunning {
			// Display only; an address lookup failure just leaves the cell blank.
			ip, _ = a.driver.IP(ctx, rec.VMName)
		}

		t.Row(
			rec.Name,
			string(status),
			strconv.Itoa(rec.Port),
			ip,
			truncate(describeCodebase(rec), maxCodebaseWidth),
		)
	}

	fmt.Println(t)
	return nil
}

// truncate shortens s to maxLen runes, ending in "..." when cut.
func truncate(s string, maxLen int) string {
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
