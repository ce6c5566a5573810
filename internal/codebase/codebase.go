// Package codebase classifies the codebase argument of `grokbox start` and
// materializes it into a local directory ready to be transferred into the
// instance VM.
package codebase

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grokbox/grokbox/internal/errors"
	"github.com/grokbox/grokbox/internal/logging"
	"github.com/grokbox/grokbox/internal/store"
)

// Source is a classified codebase argument.
type Source struct {
	Type    store.CodebaseType
	Path    string // absolute directory for local, URL for git, empty for demo
	Project string // project name used in-guest and by the indexer
}

// MaterializeOptions tunes git materialization. Both fields are ignored for
// local and demo sources.
type MaterializeOptions struct {
	Depth  int    // --depth for the clone; 0 means full history
	Branch string // --branch for the clone; "" means the default branch
}

// remotePrefixes are the URL shapes accepted as git sources.
var remotePrefixes = []string{"http://", "https://", "ssh://", "git@"}

// Classify maps a codebase argument to a Source:
//
//   - "" is the built-in demo codebase
//   - an existing local directory is used in place
//   - a remote repository URL is cloned at materialization time
//
// Anything else fails with an InvalidCodebaseError.
func Classify(argument string) (Source, error) {
	if argument == "" {
		return Source{Type: store.CodebaseDemo, Project: DemoProject}, nil
	}

	if info, err := os.Stat(argument); err == nil && info.IsDir() {
		abs, err := filepath.Abs(argument)
		if err != nil {
			return Source{}, fmt.Errorf("resolving %s: %w", argument, err)
		}
		return Source{Type: store.CodebaseLocal, Path: abs, Project: filepath.Base(abs)}, nil
	}

	if isRemote(argument) {
		project := projectNameFromURL(argument)
		if project == "" {
			return Source{}, errors.NewInvalidCodebaseError(argument)
		}
		return Source{Type: store.CodebaseGit, Path: argument, Project: project}, nil
	}

	return Source{}, errors.NewInvalidCodebaseError(argument)
}

func isRemote(argument string) bool {
	for _, prefix := range remotePrefixes {
		if strings.HasPrefix(argument, prefix) {
			return true
		}
	}
	return false
}

// projectNameFromURL extracts the repository name from a git URL, stripping
// any trailing ".git". Works for both path-style and scp-style URLs.
func projectNameFromURL(url string) string {
	name := strings.TrimSuffix(url, "/")
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".git")
}

// GitRunner runs git commands. Tests substitute a fake so no network or git
// binary is needed.
type GitRunner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

type execGitRunner struct{}

func (execGitRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	return cmd.CombinedOutput()
}

// Resolver materializes classified sources into local directories.
type Resolver struct {
	git    GitRunner
	logger *logging.Logger
}

// NewResolver returns a resolver that clones with the git binary from PATH.
func NewResolver(logger *logging.Logger) *Resolver {
	return NewResolverWithGit(execGitRunner{}, logger)
}

// NewResolverWithGit returns a resolver using a custom git runner. Primarily
// used by tests.
func NewResolverWithGit(git GitRunner, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Resolver{git: git, logger: logger}
}

// Materialize produces a local directory holding the source tree. The
// returned cleanup removes any temporary materialization (git clone, demo
// tree); callers invoke it only after provisioning succeeds, so a failed
// run leaves the tree behind for inspection. Local sources are used in
// place and their cleanup is a no-op.
func (r *Resolver) Materialize(ctx context.Context, src Source, opts MaterializeOptions) (string, func(), error) {
	switch src.Type {
	case store.CodebaseLocal:
		return src.Path, func() {}, nil
	case store.CodebaseGit:
		return r.clone(ctx, src, opts)
	case store.CodebaseDemo:
		return r.generateDemo()
	default:
		return "", nil, fmt.Errorf("unsupported codebase type %q", src.Type)
	}
}

func (r *Resolver) clone(ctx context.Context, src Source, opts MaterializeOptions) (string, func(), error) {
	dir, err := os.MkdirTemp("", "grokbox-clone-")
	if err != nil {
		return "", nil, fmt.Errorf("creating clone directory: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	args := []string{"clone"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	args = append(args, src.Path, dir)

	r.logger.Info("cloning repository", "url", src.Path)
	out, err := r.git.Run(ctx, args...)
	if err != nil {
		cleanup()
		return "", nil, errors.NewBackendError("failed to clone repository", err).
			WithOp("git clone").
			WithOutput(string(out))
	}
	return dir, cleanup, nil
}

func (r *Resolver) generateDemo() (string, func(), error) {
	dir, err := os.MkdirTemp("", "grokbox-demo-")
	if err != nil {
		return "", nil, fmt.Errorf("creating demo directory: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	if err := writeDemoTree(dir); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("generating demo codebase: %w", err)
	}
	r.logger.Debug("generated demo codebase", "dir", dir)
	return dir, cleanup, nil
}
