package cmd

import (
	"fmt"
	"os"
	"regexp"

	"github.com/dustin/go-humanize"
	"github.com/grokbox/grokbox/internal/codebase"
	"github.com/grokbox/grokbox/internal/errors"
	"github.com/grokbox/grokbox/internal/provision"
	"github.com/grokbox/grokbox/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var startCmd = &cobra.Command{
	Use:   "start <name> [codebase]",
	Short: "Create or resume an instance",
	Long: `Start provisions a new instance around a codebase, or resumes an
existing one. The codebase may be a local directory or a git URL; with
no codebase a small demo project is generated so the service has
something to index.

Re-running start on an existing instance is safe: a running instance is
left alone and a stopped one is booted without re-provisioning.

Examples:
  # Index a local checkout
  grokbox start myproj ~/src/myproj

  # Shallow-clone a repository on a custom port
  grokbox start myproj https://github.com/user/repo.git --depth 1 --port 9090

  # No codebase: generate the demo project
  grokbox start scratch`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runStart,
}

var (
	startMemory  string
	startDisk    string
	startCPUs    int
	startPort    int
	startUbuntu  string
	startNoCache bool
	startDepth   int
	startBranch  string
)

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().Var(sizeValue{&startMemory}, "memory", "VM memory size, e.g. 4G (default from config)")
	startCmd.Flags().Var(sizeValue{&startDisk}, "disk", "VM disk size, e.g. 40G (default from config)")
	startCmd.Flags().IntVar(&startCPUs, "cpus", 0, "VM CPU count (default from config)")
	startCmd.Flags().IntVar(&startPort, "port", 0, "host port for the search service (default from config)")
	startCmd.Flags().StringVar(&startUbuntu, "ubuntu", "", "Ubuntu image version, e.g. 24.04 (default from config)")
	startCmd.Flags().BoolVar(&startNoCache, "no-cache", false, "re-download dependency artifacts even if cached")
	startCmd.Flags().IntVar(&startDepth, "depth", 0, "git clone depth (git codebases only)")
	startCmd.Flags().StringVar(&startBranch, "branch", "", "git branch to clone (git codebases only)")
}

// sizeValue validates multipass-style size strings at flag-parse time.
type sizeValue struct{ s *string }

var _ pflag.Value = sizeValue{}

func (v sizeValue) String() string {
	if v.s == nil {
		return ""
	}
	return *v.s
}

func (v sizeValue) Set(raw string) error {
	if _, err := humanize.ParseBytes(raw); err != nil {
		return fmt.Errorf("must be a size like '4G' or '2048M'")
	}
	*v.s = raw
	return nil
}

func (v sizeValue) Type() string { return "size" }

// Multipass instance names follow hostname rules.
var instanceNameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)

const maxInstanceNameLen = 62

func validateInstanceName(name string) error {
	if name == "" {
		return errors.NewValidationError("instance name cannot be empty")
	}
	if len(name) > maxInstanceNameLen {
		return errors.NewValidationError(fmt.Sprintf("instance name exceeds %d characters", maxInstanceNameLen))
	}
	if !instanceNameRE.MatchString(name) {
		return errors.NewValidationError("instance name must start with a letter and contain only letters, digits and hyphens")
	}
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := validateInstanceName(name); err != nil {
		return err
	}

	codebaseArg := ""
	if len(args) == 2 {
		codebaseArg = args[1]
	}

	if cmd.Flags().Changed("port") && (startPort < 1 || startPort > 65535) {
		return errors.NewValidationError("port must be between 1 and 65535")
	}
	if cmd.Flags().Changed("cpus") && startCPUs < 1 {
		return errors.NewValidationError("cpus must be at least 1")
	}
	if cmd.Flags().Changed("depth") && startDepth < 1 {
		return errors.NewValidationError("depth must be at least 1")
	}

	src, err := codebase.Classify(codebaseArg)
	if err != nil {
		return err
	}
	if src.Type != store.CodebaseGit && (cmd.Flags().Changed("depth") || cmd.Flags().Changed("branch")) {
		fmt.Fprintln(os.Stderr, "warning: --depth and --branch only apply to git codebases; ignoring")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req := provision.Request{
		Name:            name,
		Source:          src,
		Port:            startPort,
		Memory:          startMemory,
		Disk:            startDisk,
		CPUs:            startCPUs,
		Ubuntu:          startUbuntu,
		NoCache:         startNoCache,
		Depth:           startDepth,
		Branch:          startBranch,
		IndexerMemoryMB: a.cfg.Defaults.IndexerMemoryMB,
	}
	applyDefaults(&req, a)

	// One start/destroy at a time per instance name.
	lock, err := a.store.Lock(name)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	prov := a.provisioner(printStage)
	res, err := prov.Provision(cmd.Context(), req)
	if err != nil {
		return err
	}

	switch {
	case res.AlreadyRunning:
		fmt.Printf("Instance '%s' is already running.\n", name)
	case res.Resumed:
		fmt.Printf("Instance '%s' resumed.\n", name)
	default:
		fmt.Printf("Instance '%s' is ready.\n", name)
	}

	if res.ReadyTimeout {
		fmt.Fprintf(os.Stderr, "warning: the service did not become ready in time; check 'grokbox logs %s'\n", name)
	} else if res.IP != "" {
		fmt.Printf("Service URL: http://%s:%d/\n", res.IP, res.Record.Port)
	}

	return nil
}

// applyDefaults fills every unset request field from configuration.
func applyDefaults(req *provision.Request, a *app) {
	d := a.cfg.Defaults
	if req.Memory == "" {
		req.Memory = d.Memory
	}
	if req.Disk == "" {
		req.Disk = d.Disk
	}
	if req.CPUs == 0 {
		req.CPUs = d.CPUs
	}
	if req.Port == 0 {
		req.Port = d.Port
	}
	if req.Ubuntu == "" {
		req.Ubuntu = d.Ubuntu
	}
}

// printStage gives terse per-stage feedback while provisioning runs.
func printStage(state provision.State) {
	var label string
	switch state {
	case provision.StateCreating:
		label = "creating VM"
	case provision.StateTransferringArtifacts:
		label = "transferring dependencies"
	case provision.StateMaterializingCodebase:
		label = "preparing codebase"
	case provision.StateInstalling:
		label = "installing service"
	case provision.StateStarting:
		label = "starting VM"
	case provision.StateWaitingReady:
		label = "waiting for service"
	default:
		label = string(state)
	}
	fmt.Println(mutedStyle.Render("  " + label + "..."))
}
