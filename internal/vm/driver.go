// Package vm drives the Multipass backend. It wraps the multipass CLI behind
// a Driver interface so the provisioning pipeline and commands never build
// argv lists themselves, and so tests can substitute a scripted runner.
package vm

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grokbox/grokbox/internal/errors"
	"github.com/grokbox/grokbox/internal/logging"
)

// Status is the coarse VM state grokbox cares about. Multipass reports more
// granular states; everything that is not clearly running or stopped maps to
// StatusUnknown.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusUnknown Status = "unknown"
)

// SeedMountPoint is the in-guest path where TransferTree mounts the local
// directory when the recursive transfer fails and it falls back to an
// in-guest copy.
const SeedMountPoint = "/mnt/grokbox-seed"

// notFoundMarker appears in multipass output when the named instance does
// not exist (e.g. `instance "foo" does not exist`).
const notFoundMarker = "does not exist"

// LaunchSpec describes the VM to create.
type LaunchSpec struct {
	Name   string // multipass instance name
	Image  string // Ubuntu image, e.g. "24.04"
	Memory string // e.g. "4G"
	Disk   string // e.g. "40G"
	CPUs   int
}

// Timeouts bounds the slow backend operations. Zero values mean the caller's
// context is the only bound.
type Timeouts struct {
	Launch   time.Duration // image download plus first boot
	Transfer time.Duration // dependency archives run to several GB
	Exec     time.Duration // in-guest install plus initial indexing
}

// Driver is the full backend surface consumed by the provisioning pipeline
// and the commands.
type Driver interface {
	// Launch creates and boots a new VM.
	Launch(ctx context.Context, spec LaunchSpec) error

	// Start boots an existing stopped VM.
	Start(ctx context.Context, vmName string) error

	// Stop shuts a running VM down.
	Stop(ctx context.Context, vmName string) error

	// Delete removes a VM. With purge the backend reclaims the disk
	// immediately instead of keeping the instance recoverable. A VM that
	// does not exist yields an error matching errors.ErrVMNotFound.
	Delete(ctx context.Context, vmName string, purge bool) error

	// State reports the VM's status. A VM unknown to the backend reports
	// StatusUnknown without an error.
	State(ctx context.Context, vmName string) (Status, error)

	// IP returns the VM's primary IPv4 address, or "" when the VM has no
	// address (typically because it is not running).
	IP(ctx context.Context, vmName string) (string, error)

	// Exec runs argv inside the VM and returns the combined output. The
	// output is returned even when the command fails.
	Exec(ctx context.Context, vmName string, argv []string) ([]byte, error)

	// Shell attaches an interactive shell to the VM. Stdio is inherited,
	// so multipass reports its own errors directly on the terminal; the
	// returned error carries the session's exit status.
	Shell(vmName string) error

	// Stream runs argv inside the VM with stdio inherited, for commands
	// that follow output until interrupted (e.g. journalctl -f).
	Stream(vmName string, argv []string) error

	// TransferFile copies a single local file into the VM.
	TransferFile(ctx context.Context, localPath, vmName, remotePath string) error

	// TransferTree copies a local directory tree into the VM. It tries a
	// recursive transfer first and falls back to mounting the directory
	// and copying in-guest. Both tiers failing is fatal and the error
	// matches errors.ErrTransferFailed.
	TransferTree(ctx context.Context, localDir, vmName, remoteDir string) error

	// Mount exposes a local directory inside the VM.
	Mount(ctx context.Context, localDir, vmName, remotePath string) error

	// Unmount removes a previously mounted directory.
	Unmount(ctx context.Context, vmName, remotePath string) error
}

// StateQuerier is the narrow read-only slice of Driver needed by callers
// that only check whether VMs are running, such as the port allocator.
type StateQuerier interface {
	State(ctx context.Context, vmName string) (Status, error)
}

// MultipassDriver implements Driver on top of the multipass CLI.
type MultipassDriver struct {
	runner   Runner
	timeouts Timeouts
	logger   *logging.Logger
}

var (
	_ Driver       = (*MultipassDriver)(nil)
	_ StateQuerier = (*MultipassDriver)(nil)
)

// NewMultipassDriver returns a driver that shells out to the given multipass
// binary ("" means multipass from PATH).
func NewMultipassDriver(binary string, timeouts Timeouts, logger *logging.Logger) *MultipassDriver {
	return NewMultipassDriverWithRunner(NewExecRunner(binary), timeouts, logger)
}

// NewMultipassDriverWithRunner returns a driver using a custom runner.
// Primarily used by tests.
func NewMultipassDriverWithRunner(runner Runner, timeouts Timeouts, logger *logging.Logger) *MultipassDriver {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &MultipassDriver{
		runner:   runner,
		timeouts: timeouts,
		logger:   logger,
	}
}

func (d *MultipassDriver) Launch(ctx context.Context, spec LaunchSpec) error {
	args := []string{
		"launch", spec.Image,
		"--name", spec.Name,
		"--memory", spec.Memory,
		"--disk", spec.Disk,
		"--cpus", strconv.Itoa(spec.CPUs),
	}

	ctx, cancel := withTimeout(ctx, d.timeouts.Launch)
	defer cancel()

	d.logger.WithVM(spec.Name).Info("launching vm",
		"image", spec.Image,
		"memory", spec.Memory,
		"disk", spec.Disk,
		"cpus", spec.CPUs)

	out, err := d.runner.Run(ctx, args...)
	if err != nil {
		return d.wrap(ctx, "launch", spec.Name, "failed to launch VM", d.timeouts.Launch, out, err)
	}
	return nil
}

func (d *MultipassDriver) Start(ctx context.Context, vmName string) error {
	// Booting a stopped VM is bounded like a launch.
	ctx, cancel := withTimeout(ctx, d.timeouts.Launch)
	defer cancel()

	d.logger.WithVM(vmName).Info("starting vm")
	out, err := d.runner.Run(ctx, "start", vmName)
	if err != nil {
		return d.wrap(ctx, "start", vmName, "failed to start VM", d.timeouts.Launch, out, err)
	}
	return nil
}

func (d *MultipassDriver) Stop(ctx context.Context, vmName string) error {
	d.logger.WithVM(vmName).Info("stopping vm")
	out, err := d.runner.Run(ctx, "stop", vmName)
	if err != nil {
		return d.wrap(ctx, "stop", vmName, "failed to stop VM", 0, out, err)
	}
	return nil
}

func (d *MultipassDriver) Delete(ctx context.Context, vmName string, purge bool) error {
	args := []string{"delete", vmName}
	if purge {
		args = append(args, "--purge")
	}

	d.logger.WithVM(vmName).Info("deleting vm", "purge", purge)
	out, err := d.runner.Run(ctx, args...)
	if err != nil {
		if isNotFound(out) {
			return fmt.Errorf("%w: %s", errors.ErrVMNotFound, vmName)
		}
		return d.wrap(ctx, "delete", vmName, "failed to delete VM", 0, out, err)
	}
	return nil
}

func (d *MultipassDriver) State(ctx context.Context, vmName string) (Status, error) {
	out, err := d.runner.Run(ctx, "info", vmName, "--format", "csv")
	if err != nil {
		if isNotFound(out) {
			return StatusUnknown, nil
		}
		return StatusUnknown, d.wrap(ctx, "info", vmName, "failed to query VM state", 0, out, err)
	}

	state, _, perr := parseInfoCSV(out)
	if perr != nil {
		return StatusUnknown, errors.NewBackendError("unexpected multipass info output", perr).
			WithOp("info").
			WithVM(vmName).
			WithOutput(string(out))
	}
	return parseStatus(state), nil
}

func (d *MultipassDriver) IP(ctx context.Context, vmName string) (string, error) {
	out, err := d.runner.Run(ctx, "info", vmName, "--format", "csv")
	if err != nil {
		if isNotFound(out) {
			return "", fmt.Errorf("%w: %s", errors.ErrVMNotFound, vmName)
		}
		return "", d.wrap(ctx, "info", vmName, "failed to query VM address", 0, out, err)
	}

	_, ip, perr := parseInfoCSV(out)
	if perr != nil {
		return "", errors.NewBackendError("unexpected multipass info output", perr).
			WithOp("info").
			WithVM(vmName).
			WithOutput(string(out))
	}
	return ip, nil
}

func (d *MultipassDriver) Exec(ctx context.Context, vmName string, argv []string) ([]byte, error) {
	args := append([]string{"exec", vmName, "--"}, argv...)

	ctx, cancel := withTimeout(ctx, d.timeouts.Exec)
	defer cancel()

	d.logger.WithVM(vmName).Debug("executing in vm", "command", strings.Join(argv, " "))
	out, err := d.runner.Run(ctx, args...)
	if err != nil {
		return out, d.wrap(ctx, "exec", vmName,
			fmt.Sprintf("command %q failed in VM", strings.Join(argv, " ")),
			d.timeouts.Exec, out, err)
	}
	return out, nil
}

func (d *MultipassDriver) Shell(vmName string) error {
	return d.runner.RunInteractive("shell", vmName)
}

func (d *MultipassDriver) Stream(vmName string, argv []string) error {
	args := append([]string{"exec", vmName, "--"}, argv...)
	return d.runner.RunInteractive(args...)
}

func (d *MultipassDriver) TransferFile(ctx context.Context, localPath, vmName, remotePath string) error {
	ctx, cancel := withTimeout(ctx, d.timeouts.Transfer)
	defer cancel()

	d.logger.WithVM(vmName).Debug("transferring file", "source", localPath, "target", remotePath)
	out, err := d.runner.Run(ctx, "transfer", localPath, vmName+":"+remotePath)
	if err != nil {
		return d.wrap(ctx, "transfer", vmName,
			fmt.Sprintf("failed to transfer %s", localPath),
			d.timeouts.Transfer, out, err)
	}
	return nil
}

func (d *MultipassDriver) TransferTree(ctx context.Context, localDir, vmName, remoteDir string) error {
	// Tier 1: recursive transfer. The trailing slash copies the directory's
	// contents rather than nesting the directory itself.
	src := strings.TrimSuffix(localDir, "/") + "/"

	tctx, cancel := withTimeout(ctx, d.timeouts.Transfer)
	out, terr := d.runner.Run(tctx, "transfer", "-r", src, vmName+":"+remoteDir)
	cancel()
	if terr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return d.wrap(ctx, "transfer", vmName,
			fmt.Sprintf("failed to transfer %s", localDir),
			d.timeouts.Transfer, out, terr)
	}

	// Tier 2: mount the directory into the guest and copy from there.
	// Older multipass releases reject recursive transfers outright, and
	// large trees can trip transfer bugs; the mount path is slower but
	// has no size limit.
	d.logger.WithVM(vmName).Warn("recursive transfer failed, falling back to mount",
		"source", localDir,
		"error", terr.Error())

	if merr := d.Mount(ctx, localDir, vmName, SeedMountPoint); merr != nil {
		return errors.NewBackendError(
			fmt.Sprintf("recursive transfer failed (%v) and mount fallback failed (%v)", terr, merr),
			errors.ErrTransferFailed).
			WithOp("transfer").
			WithVM(vmName).
			WithOutput(string(out))
	}

	if _, cerr := d.Exec(ctx, vmName, []string{"sudo", "cp", "-rT", SeedMountPoint, remoteDir}); cerr != nil {
		if uerr := d.Unmount(ctx, vmName, SeedMountPoint); uerr != nil {
			d.logger.WithVM(vmName).Warn("failed to unmount seed directory", "error", uerr.Error())
		}
		return errors.NewBackendError(
			fmt.Sprintf("recursive transfer failed (%v) and in-guest copy failed (%v)", terr, cerr),
			errors.ErrTransferFailed).
			WithOp("transfer").
			WithVM(vmName).
			WithOutput(string(out))
	}

	// A stuck unmount should not fail the transfer; the data is already
	// in place.
	if uerr := d.Unmount(ctx, vmName, SeedMountPoint); uerr != nil {
		d.logger.WithVM(vmName).Warn("failed to unmount seed directory", "error", uerr.Error())
	}

	d.logger.WithVM(vmName).Info("seeded directory via mount fallback",
		"source", localDir,
		"target", remoteDir)
	return nil
}

func (d *MultipassDriver) Mount(ctx context.Context, localDir, vmName, remotePath string) error {
	ctx, cancel := withTimeout(ctx, d.timeouts.Transfer)
	defer cancel()

	out, err := d.runner.Run(ctx, "mount", localDir, vmName+":"+remotePath)
	if err != nil {
		return d.wrap(ctx, "mount", vmName,
			fmt.Sprintf("failed to mount %s", localDir),
			d.timeouts.Transfer, out, err)
	}
	return nil
}

func (d *MultipassDriver) Unmount(ctx context.Context, vmName, remotePath string) error {
	out, err := d.runner.Run(ctx, "umount", vmName+":"+remotePath)
	if err != nil {
		return d.wrap(ctx, "umount", vmName,
			fmt.Sprintf("failed to unmount %s", remotePath),
			0, out, err)
	}
	return nil
}

// wrap converts a failed multipass invocation into a grokbox error. A context
// that hit its deadline becomes a TimeoutError; everything else becomes a
// BackendError carrying the raw output.
func (d *MultipassDriver) wrap(ctx context.Context, op, vmName, message string, timeout time.Duration, output []byte, err error) error {
	if timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewTimeoutError("multipass "+op, timeout).WithCause(err)
	}
	return errors.NewBackendError(message, err).
		WithOp(op).
		WithVM(vmName).
		WithOutput(string(output))
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func isNotFound(output []byte) bool {
	return strings.Contains(string(output), notFoundMarker)
}

// parseInfoCSV extracts the State and IPv4 columns from `multipass info
// --format csv` output: a header row followed by one data row. Columns are
// located by header name so column order changes across multipass releases
// don't break parsing.
func parseInfoCSV(out []byte) (state, ip string, err error) {
	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return "", "", fmt.Errorf("parsing csv: %w", err)
	}
	if len(rows) < 2 {
		return "", "", fmt.Errorf("expected header and data rows, got %d", len(rows))
	}

	header, data := rows[0], rows[1]
	stateIdx, ipIdx := -1, -1
	for i, col := range header {
		switch col {
		case "State":
			stateIdx = i
		case "IPv4":
			ipIdx = i
		}
	}
	if stateIdx < 0 || stateIdx >= len(data) {
		return "", "", fmt.Errorf("no State column in output")
	}

	state = data[stateIdx]
	if ipIdx >= 0 && ipIdx < len(data) {
		ip = firstAddress(data[ipIdx])
	}
	return state, ip, nil
}

func parseStatus(s string) Status {
	switch s {
	case "Running":
		return StatusRunning
	case "Stopped", "Suspended":
		return StatusStopped
	default:
		return StatusUnknown
	}
}

// firstAddress returns the first address from a multipass IPv4 field, which
// joins multiple addresses with commas and uses "--" for none.
func firstAddress(field string) string {
	field = strings.TrimSpace(field)
	if field == "" || field == "--" {
		return ""
	}
	if i := strings.IndexAny(field, ", "); i >= 0 {
		field = field[:i]
	}
	return strings.TrimSpace(field)
}
