package vm

import (
	"context"
	"os"
	"os/exec"
)

// Runner executes multipass invocations. The production implementation shells
// out to the multipass binary; tests substitute a scripted fake.
type Runner interface {
	// Run executes multipass with the given arguments and returns the
	// combined stdout/stderr output. The context bounds the invocation;
	// when it expires the process is killed.
	Run(ctx context.Context, args ...string) ([]byte, error)

	// RunInteractive executes multipass with the caller's stdin, stdout,
	// and stderr attached. Used for shell sessions and streamed output
	// where the user interacts with the process directly.
	RunInteractive(args ...string) error
}

// ExecRunner runs the real multipass binary via os/exec.
type ExecRunner struct {
	binary string
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner returns a runner for the given multipass binary. An empty
// binary falls back to "multipass" resolved from PATH.
func NewExecRunner(binary string) *ExecRunner {
	if binary == "" {
		binary = "multipass"
	}
	return &ExecRunner{binary: binary}
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	return cmd.CombinedOutput()
}

func (r *ExecRunner) RunInteractive(args ...string) error {
	cmd := exec.Command(r.binary, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
