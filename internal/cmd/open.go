package cmd

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/grokbox/grokbox/internal/vm"
	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open <name>",
	Short: "Open an instance's search UI in the browser",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
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

	ip, err := a.driver.IP(ctx, rec.VMName)
	if err != nil {
		return err
	}
	if ip == "" {
		return fmt.Errorf("instance '%s' has no address yet; try again in a moment", name)
	}

	url := fmt.Sprintf("http://%s:%d/", ip, rec.Port)
	fmt.Printf("Opening %s\n", url)
	return openURL(url)
}

// openURL opens the given URL in the default browser
func openURL(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
