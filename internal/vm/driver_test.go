package vm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/grokbox/grokbox/internal/errors"
)

// -----------------------------------------------------------------------------
// Fake Runner for Unit Tests
// -----------------------------------------------------------------------------

type fakeResponse struct {
	output []byte
	err    error
}

// fakeRunner is a test double for Runner. Responses are consumed in the
// order they were added; calls beyond the scripted responses succeed with
// empty output.
type fakeRunner struct {
	calls       [][]string
	responses   []fakeResponse
	callIndex   int
	interactive [][]string
	// waitForCtx makes Run block until the context is done and return its
	// error, to exercise timeout handling.
	waitForCtx bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{}
}

func (f *fakeRunner) addResponse(output []byte, err error) {
	f.responses = append(f.responses, fakeResponse{output: output, err: err})
}

func (f *fakeRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	f.calls = append(f.calls, args)
	if f.waitForCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	idx := f.callIndex
	f.callIndex++
	if idx < len(f.responses) {
		return f.responses[idx].output, f.responses[idx].err
	}
	return nil, nil
}

func (f *fakeRunner) RunInteractive(args ...string) error {
	f.interactive = append(f.interactive, args)
	return nil
}

func (f *fakeRunner) lastCall() []string {
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func newTestDriver(runner Runner) *MultipassDriver {
	return NewMultipassDriverWithRunner(runner, Timeouts{}, nil)
}

func assertArgs(t *testing.T, got []string, want ...string) {
	t.Helper()
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("unexpected command:\n  got  %v\n  want %v", got, want)
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func TestMultipassDriver_Launch(t *testing.T) {
	fake := newFakeRunner()
	d := newTestDriver(fake)

	err := d.Launch(context.Background(), LaunchSpec{
		Name:   "grokbox-myproj",
		Image:  "24.04",
		Memory: "4G",
		Disk:   "40G",
		CPUs:   2,
	})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	assertArgs(t, fake.lastCall(),
		"launch", "24.04",
		"--name", "grokbox-myproj",
		"--memory", "4G",
		"--disk", "40G",
		"--cpus", "2")
}

func TestMultipassDriver_Launch_BackendError(t *testing.T) {
	fake := newFakeRunner()
	fake.addResponse([]byte("launch failed: image not found"), errors.New("exit status 2"))
	d := newTestDriver(fake)

	err := d.Launch(context.Background(), LaunchSpec{Name: "grokbox-x", Image: "24.04", Memory: "4G", Disk: "40G", CPUs: 2})
	if err == nil {
		t.Fatal("Launch() expected error")
	}

	var backendErr *errors.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Launch() error = %T, want *errors.BackendError", err)
	}
	if backendErr.Op != "launch" {
		t.Errorf("Op = %q, want %q", backendErr.Op, "launch")
	}
	if backendErr.VM != "grokbox-x" {
		t.Errorf("VM = %q, want %q", backendErr.VM, "grokbox-x")
	}
	if !strings.Contains(backendErr.Output, "image not found") {
		t.Errorf("Output = %q, want it to contain the raw multipass output", backendErr.Output)
	}
}

func TestMultipassDriver_Launch_Timeout(t *testing.T) {
	fake := newFakeRunner()
	fake.waitForCtx = true
	d := NewMultipassDriverWithRunner(fake, Timeouts{Launch: 5 * time.Millisecond}, nil)

	err := d.Launch(context.Background(), LaunchSpec{Name: "grokbox-x", Image: "24.04", Memory: "4G", Disk: "40G", CPUs: 2})
	if err == nil {
		t.Fatal("Launch() expected timeout error")
	}

	var timeoutErr *errors.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Launch() error = %T (%v), want *errors.TimeoutError", err, err)
	}
	if timeoutErr.Operation != "multipass launch" {
		t.Errorf("Operation = %q, want %q", timeoutErr.Operation, "multipass launch")
	}
	if timeoutErr.Duration != 5*time.Millisecond {
		t.Errorf("Duration = %v, want %v", timeoutErr.Duration, 5*time.Millisecond)
	}
}

func TestMultipassDriver_StartStop(t *testing.T) {
	fake := newFakeRunner()
	d := newTestDriver(fake)

	if err := d.Start(context.Background(), "grokbox-a"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	assertArgs(t, fake.lastCall(), "start", "grokbox-a")

	if err := d.Stop(context.Background(), "grokbox-a"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	assertArgs(t, fake.lastCall(), "stop", "grokbox-a")
}

func TestMultipassDriver_Delete(t *testing.T) {
	tests := []struct {
		name  string
		purge bool
		want  []string
	}{
		{"without purge", false, []string{"delete", "grokbox-a"}},
		{"with purge", true, []string{"delete", "grokbox-a", "--purge"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeRunner()
			d := newTestDriver(fake)

			if err := d.Delete(context.Background(), "grokbox-a", tt.purge); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			assertArgs(t, fake.lastCall(), tt.want...)
		})
	}
}

func TestMultipassDriver_Delete_NotFound(t *testing.T) {
	fake := newFakeRunner()
	fake.addResponse([]byte(`delete failed: instance "grokbox-a" does not exist`), errors.New("exit status 1"))
	d := newTestDriver(fake)

	err := d.Delete(context.Background(), "grokbox-a", true)
	if !errors.Is(err, errors.ErrVMNotFound) {
		t.Errorf("Delete() error = %v, want ErrVMNotFound", err)
	}
}

// -----------------------------------------------------------------------------
// State and IP
// -----------------------------------------------------------------------------

const infoHeader = "Name,State,Snapshots,IPv4,Release,Image hash,Image release,Load,Disk usage,Disk total,Memory usage,Memory total,Mounts,AllIPv4,CPU(s)\n"

func infoRow(name, state, ipv4 string) string {
	return infoHeader + name + "," + state + ",0," + ipv4 + ",Ubuntu 24.04 LTS,abc123,24.04 LTS,0.1 0.2 0.3,2.0GiB,38.7GiB,500MiB,3.9GiB,,,2\n"
}

func TestMultipassDriver_State(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		err     error
		want    Status
		wantErr bool
	}{
		{
			name:   "running",
			output: infoRow("grokbox-a", "Running", "10.219.192.95"),
			want:   StatusRunning,
		},
		{
			name:   "stopped",
			output: infoRow("grokbox-a", "Stopped", "--"),
			want:   StatusStopped,
		},
		{
			name:   "suspended counts as stopped",
			output: infoRow("grokbox-a", "Suspended", "--"),
			want:   StatusStopped,
		},
		{
			name:   "deleted is unknown",
			output: infoRow("grokbox-a", "Deleted", "--"),
			want:   StatusUnknown,
		},
		{
			name:   "unrecognized state is unknown",
			output: infoRow("grokbox-a", "Restarting", "--"),
			want:   StatusUnknown,
		},
		{
			name:   "missing vm is unknown without error",
			output: `info failed: instance "grokbox-a" does not exist`,
			err:    errors.New("exit status 1"),
			want:   StatusUnknown,
		},
		{
			name:    "backend failure",
			output:  "cannot connect to the multipass socket",
			err:     errors.New("exit status 1"),
			want:    StatusUnknown,
			wantErr: true,
		},
		{
			name:    "header without data row",
			output:  infoHeader,
			want:    StatusUnknown,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeRunner()
			fake.addResponse([]byte(tt.output), tt.err)
			d := newTestDriver(fake)

			got, err := d.State(context.Background(), "grokbox-a")
			if (err != nil) != tt.wantErr {
				t.Fatalf("State() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("State() = %v, want %v", got, tt.want)
			}

			assertArgs(t, fake.lastCall(), "info", "grokbox-a", "--format", "csv")
		})
	}
}

func TestMultipassDriver_IP(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "single address",
			output: infoRow("grokbox-a", "Running", "10.219.192.95"),
			want:   "10.219.192.95",
		},
		{
			name:   "multiple addresses take the first",
			output: infoRow("grokbox-a", "Running", `"10.219.192.95,172.17.0.1"`),
			want:   "10.219.192.95",
		},
		{
			name:   "stopped vm has no address",
			output: infoRow("grokbox-a", "Stopped", "--"),
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeRunner()
			fake.addResponse([]byte(tt.output), nil)
			d := newTestDriver(fake)

			got, err := d.IP(context.Background(), "grokbox-a")
			if err != nil {
				t.Fatalf("IP() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMultipassDriver_IP_NotFound(t *testing.T) {
	fake := newFakeRunner()
	fake.addResponse([]byte(`info failed: instance "grokbox-a" does not exist`), errors.New("exit status 1"))
	d := newTestDriver(fake)

	_, err := d.IP(context.Background(), "grokbox-a")
	if !errors.Is(err, errors.ErrVMNotFound) {
		t.Errorf("IP() error = %v, want ErrVMNotFound", err)
	}
}

// -----------------------------------------------------------------------------
// Exec, Shell, Stream
// -----------------------------------------------------------------------------

func TestMultipassDriver_Exec(t *testing.T) {
	fake := newFakeRunner()
	fake.addResponse([]byte("install complete\n"), nil)
	d := newTestDriver(fake)

	out, err := d.Exec(context.Background(), "grokbox-a", []string{"sudo", "systemctl", "restart", "grokbox"})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if string(out) != "install complete\n" {
		t.Errorf("Exec() output = %q", out)
	}

	assertArgs(t, fake.lastCall(), "exec", "grokbox-a", "--", "sudo", "systemctl", "restart", "grokbox")
}

func TestMultipassDriver_Exec_ErrorKeepsOutput(t *testing.T) {
	fake := newFakeRunner()
	fake.addResponse([]byte("pip: command not found\n"), errors.New("exit status 127"))
	d := newTestDriver(fake)

	out, err := d.Exec(context.Background(), "grokbox-a", []string{"pip", "install"})
	if err == nil {
		t.Fatal("Exec() expected error")
	}
	if string(out) != "pip: command not found\n" {
		t.Errorf("Exec() output = %q, want the raw output even on failure", out)
	}

	var backendErr *errors.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Exec() error = %T, want *errors.BackendError", err)
	}
	if !strings.Contains(backendErr.Output, "command not found") {
		t.Errorf("Output = %q, want raw command output", backendErr.Output)
	}
}

func TestMultipassDriver_Shell(t *testing.T) {
	fake := newFakeRunner()
	d := newTestDriver(fake)

	if err := d.Shell("grokbox-a"); err != nil {
		t.Fatalf("Shell() error = %v", err)
	}
	if len(fake.interactive) != 1 {
		t.Fatalf("expected 1 interactive call, got %d", len(fake.interactive))
	}
	assertArgs(t, fake.interactive[0], "shell", "grokbox-a")
}

func TestMultipassDriver_Stream(t *testing.T) {
	fake := newFakeRunner()
	d := newTestDriver(fake)

	if err := d.Stream("grokbox-a", []string{"journalctl", "-u", "grokbox", "-f"}); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	assertArgs(t, fake.interactive[0], "exec", "grokbox-a", "--", "journalctl", "-u", "grokbox", "-f")
}

// -----------------------------------------------------------------------------
// Transfers
// -----------------------------------------------------------------------------

func TestMultipassDriver_TransferFile(t *testing.T) {
	fake := newFakeRunner()
	d := newTestDriver(fake)

	err := d.TransferFile(context.Background(), "/tmp/install.sh", "grokbox-a", "/opt/grokbox/deps/install.sh")
	if err != nil {
		t.Fatalf("TransferFile() error = %v", err)
	}
	assertArgs(t, fake.lastCall(), "transfer", "/tmp/install.sh", "grokbox-a:/opt/grokbox/deps/install.sh")
}

func TestMultipassDriver_TransferTree_Recursive(t *testing.T) {
	fake := newFakeRunner()
	d := newTestDriver(fake)

	err := d.TransferTree(context.Background(), "/tmp/deps", "grokbox-a", "/opt/grokbox/deps")
	if err != nil {
		t.Fatalf("TransferTree() error = %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fake.calls))
	}
	assertArgs(t, fake.calls[0], "transfer", "-r", "/tmp/deps/", "grokbox-a:/opt/grokbox/deps")
}

func TestMultipassDriver_TransferTree_MountFallback(t *testing.T) {
	fake := newFakeRunner()
	fake.addResponse([]byte("[2] transfer failed"), errors.New("exit status 2")) // transfer -r
	fake.addResponse(nil, nil)                                                   // mount
	fake.addResponse(nil, nil)                                                   // in-guest cp
	fake.addResponse(nil, nil)                                                   // umount
	d := newTestDriver(fake)

	err := d.TransferTree(context.Background(), "/tmp/deps", "grokbox-a", "/opt/grokbox/deps")
	if err != nil {
		t.Fatalf("TransferTree() error = %v", err)
	}
	if len(fake.calls) != 4 {
		t.Fatalf("expected 4 calls, got %d: %v", len(fake.calls), fake.calls)
	}

	assertArgs(t, fake.calls[0], "transfer", "-r", "/tmp/deps/", "grokbox-a:/opt/grokbox/deps")
	assertArgs(t, fake.calls[1], "mount", "/tmp/deps", "grokbox-a:/mnt/grokbox-seed")
	assertArgs(t, fake.calls[2], "exec", "grokbox-a", "--", "sudo", "cp", "-rT", "/mnt/grokbox-seed", "/opt/grokbox/deps")
	assertArgs(t, fake.calls[3], "umount", "grokbox-a:/mnt/grokbox-seed")
}

func TestMultipassDriver_TransferTree_BothTiersFail(t *testing.T) {
	fake := newFakeRunner()
	fake.addResponse([]byte("transfer failed"), errors.New("exit status 2"))
	fake.addResponse([]byte("mount failed"), errors.New("exit status 1"))
	d := newTestDriver(fake)

	err := d.TransferTree(context.Background(), "/tmp/deps", "grokbox-a", "/opt/grokbox/deps")
	if !errors.Is(err, errors.ErrTransferFailed) {
		t.Fatalf("TransferTree() error = %v, want ErrTransferFailed", err)
	}
	if !strings.Contains(err.Error(), "recursive transfer failed") ||
		!strings.Contains(err.Error(), "mount fallback failed") {
		t.Errorf("TransferTree() error should describe both attempts, got: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(fake.calls))
	}
}

func TestMultipassDriver_TransferTree_CopyFailureUnmounts(t *testing.T) {
	fake := newFakeRunner()
	fake.addResponse([]byte("transfer failed"), errors.New("exit status 2")) // transfer -r
	fake.addResponse(nil, nil)                                               // mount
	fake.addResponse([]byte("no space left"), errors.New("exit status 1"))   // in-guest cp
	fake.addResponse(nil, nil)                                               // umount
	d := newTestDriver(fake)

	err := d.TransferTree(context.Background(), "/tmp/deps", "grokbox-a", "/opt/grokbox/deps")
	if !errors.Is(err, errors.ErrTransferFailed) {
		t.Fatalf("TransferTree() error = %v, want ErrTransferFailed", err)
	}
	if len(fake.calls) != 4 {
		t.Fatalf("expected the seed mount to be unmounted after a failed copy, got calls: %v", fake.calls)
	}
	assertArgs(t, fake.lastCall(), "umount", "grokbox-a:/mnt/grokbox-seed")
}

func TestMultipassDriver_TransferTree_UnmountFailureIsNotFatal(t *testing.T) {
	fake := newFakeRunner()
	fake.addResponse([]byte("transfer failed"), errors.New("exit status 2")) // transfer -r
	fake.addResponse(nil, nil)                                               // mount
	fake.addResponse(nil, nil)                                               // in-guest cp
	fake.addResponse([]byte("umount failed"), errors.New("exit status 1"))   // umount
	d := newTestDriver(fake)

	if err := d.TransferTree(context.Background(), "/tmp/deps", "grokbox-a", "/opt/grokbox/deps"); err != nil {
		t.Fatalf("TransferTree() error = %v, want success once the data is copied", err)
	}
}

func TestMultipassDriver_Mount_Unmount(t *testing.T) {
	fake := newFakeRunner()
	d := newTestDriver(fake)

	if err := d.Mount(context.Background(), "/tmp/src", "grokbox-a", "/mnt/seed"); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	assertArgs(t, fake.lastCall(), "mount", "/tmp/src", "grokbox-a:/mnt/seed")

	if err := d.Unmount(context.Background(), "grokbox-a", "/mnt/seed"); err != nil {
		t.Fatalf("Unmount() error = %v", err)
	}
	assertArgs(t, fake.lastCall(), "umount", "grokbox-a:/mnt/seed")
}

// -----------------------------------------------------------------------------
// Parsing helpers
// -----------------------------------------------------------------------------

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"Running", StatusRunning},
		{"Stopped", StatusStopped},
		{"Suspended", StatusStopped},
		{"Deleted", StatusUnknown},
		{"Starting", StatusUnknown},
		{"", StatusUnknown},
	}
	for _, tt := range tests {
		if got := parseStatus(tt.in); got != tt.want {
			t.Errorf("parseStatus(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFirstAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.219.192.95", "10.219.192.95"},
		{"10.219.192.95,172.17.0.1", "10.219.192.95"},
		{"10.219.192.95 172.17.0.1", "10.219.192.95"},
		{"--", ""},
		{"", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := firstAddress(tt.in); got != tt.want {
			t.Errorf("firstAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
