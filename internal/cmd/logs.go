package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs <name>",
	Short: "Show the service logs from inside an instance",
	Long: `Logs prints the recent journal of the search service running inside the
instance's VM. With --follow the journal is streamed until interrupted.

Examples:
  # Last 200 service log lines
  grokbox logs myproj

  # Stream logs in real time
  grokbox logs myproj -f`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

var logsFollow bool

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output (like tail -f)")
}

func runLogs(cmd *cobra.Command, args []string) error {
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

	if logsFollow {
		// Streamed straight to the terminal; Ctrl+C ends it.
		return a.driver.Stream(rec.VMName, []string{"journalctl", "-u", "grokbox", "-f"})
	}

	out, err := a.driver.Exec(cmd.Context(), rec.VMName, []string{"journalctl", "-u", "grokbox", "-n", "200", "--no-pager"})
	if len(out) > 0 {
		_, _ = os.Stdout.Write(out)
	}
	return err
}
