// Package provision drives an instance through the staged lifecycle that
// takes it from nothing to a running, probed service. The pipeline is an
// explicit ordered list of stages executed until the first failure, so
// every error names the stage it came from.
package provision

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/grokbox/grokbox/internal/codebase"
	"github.com/grokbox/grokbox/internal/config"
	"github.com/grokbox/grokbox/internal/errors"
	"github.com/grokbox/grokbox/internal/logging"
	"github.com/grokbox/grokbox/internal/probe"
	"github.com/grokbox/grokbox/internal/store"
	"github.com/grokbox/grokbox/internal/vm"
)

// State names a provisioning stage. The value is what operators see in
// logs and stage-attributed errors.
type State string

const (
	StateNotExists             State = "not-exists"
	StateCreating              State = "creating"
	StateTransferringArtifacts State = "transferring-artifacts"
	StateMaterializingCodebase State = "materializing-codebase"
	StateInstalling            State = "installing"
	StateStarting              State = "starting"
	StateWaitingReady          State = "waiting-ready"
	StateReady                 State = "ready"
	StateFailed                State = "failed"
)

// In-guest layout. The installer script ships inside the dependency cache
// and everything lives under one root owned by the default user after the
// transfer stage.
const (
	guestRoot    = "/opt/grokbox"
	guestDepsDir = "/opt/grokbox/deps"
	guestSrcRoot = "/opt/grokbox/src"
)

// VMName returns the multipass instance name backing a grokbox instance.
func VMName(instance string) string {
	return "grokbox-" + instance
}

// Request carries everything `start` collected for one provisioning run.
// For an instance that already exists, only Name is consulted: recorded
// parameters win and nothing is re-validated or re-applied.
type Request struct {
	Name            string
	Source          codebase.Source
	Port            int
	Memory          string
	Disk            string
	CPUs            int
	Ubuntu          string
	NoCache         bool
	Depth           int
	Branch          string
	IndexerMemoryMB int
}

// Result reports how provisioning ended.
type Result struct {
	Record *store.Record
	IP     string

	// AlreadyRunning is set when the instance was up before this run and
	// nothing was done.
	AlreadyRunning bool
	// Resumed is set when a stopped instance was booted instead of
	// provisioned from scratch.
	Resumed bool
	// ReadyTimeout is set when the service never answered its readiness
	// probe. The instance is left running; the operator should check logs.
	ReadyTimeout bool
}

// PortChecker verifies a requested port is not held by a running instance.
type PortChecker interface {
	CheckAvailable(ctx context.Context, port int, excluding string) error
}

// Materializer produces a local source tree ready for transfer.
type Materializer interface {
	Materialize(ctx context.Context, src codebase.Source, opts codebase.MaterializeOptions) (string, func(), error)
}

// DependencyCache readies the host-side dependency cache.
type DependencyCache interface {
	Ensure(ctx context.Context, force bool) error
	Dir() string
}

// ReadyProber answers whether the service responds at url.
type ReadyProber interface {
	Probe(ctx context.Context, url string) bool
}

// RecordStore is the store surface the pipeline needs.
type RecordStore interface {
	Save(rec *store.Record) error
	Load(name string) (*store.Record, error)
}

// Options wires a Provisioner. Logger and Progress may be nil.
type Options struct {
	Store     RecordStore
	Driver    vm.Driver
	Ports     PortChecker
	Resolver  Materializer
	Deps      DependencyCache
	Prober    ReadyProber
	Readiness config.ReadinessConfig
	Logger    *logging.Logger

	// Progress is invoked as each stage begins, for terse CLI feedback.
	Progress func(State)
}

// Provisioner runs the instance lifecycle state machine.
type Provisioner struct {
	store     RecordStore
	driver    vm.Driver
	ports     PortChecker
	resolver  Materializer
	deps      DependencyCache
	prober    ReadyProber
	readiness config.ReadinessConfig
	logger    *logging.Logger
	progress  func(State)
}

func New(opts Options) *Provisioner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Provisioner{
		store:     opts.Store,
		driver:    opts.Driver,
		ports:     opts.Ports,
		resolver:  opts.Resolver,
		deps:      opts.Deps,
		prober:    opts.Prober,
		readiness: opts.Readiness,
		logger:    logger,
		progress:  opts.Progress,
	}
}

// run is the mutable context threaded through one pipeline execution.
type run struct {
	req    Request
	vmName string
	port   int

	srcDir  string // materialized codebase on the host
	cleanup func() // removes the materialization; only called on success
	ip      string

	readyTimeout bool
}

// guestSrcDir is where the instance's codebase lands inside the VM.
func (r *run) guestSrcDir() string {
	return path.Join(guestSrcRoot, r.req.Source.Project)
}

// stage pairs a state name with its work. Stages run in slice order and
// the first failure aborts the pipeline.
type stage struct {
	state State
	run   func(ctx context.Context, r *run) error
}

// Provision brings the named instance to Ready. Three entry paths:
//
//   - no record: full pipeline, record saved at the end
//   - record + running VM: immediate no-op (idempotent re-entry)
//   - record + stopped VM: boot and re-probe, nothing re-provisioned
//
// Failures abort without rollback: the VM and partial transfers stay up
// for inspection, and the operator destroys and retries.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*Result, error) {
	rec, err := p.store.Load(req.Name)
	if err != nil {
		var notFound *errors.NotFoundError
		if errors.As(err, &notFound) {
			return p.fresh(ctx, req)
		}
		return nil, err
	}
	return p.resume(ctx, req, rec)
}

func (p *Provisioner) fresh(ctx context.Context, req Request) (*Result, error) {
	if err := p.ports.CheckAvailable(ctx, req.Port, req.Name); err != nil {
		return nil, err
	}

	r := &run{req: req, vmName: VMName(req.Name), port: req.Port}
	stages := []stage{
		{StateCreating, p.stageCreate},
		{StateTransferringArtifacts, p.stageTransferArtifacts},
		{StateMaterializingCodebase, p.stageMaterializeCodebase},
		{StateInstalling, p.stageInstall},
		{StateWaitingReady, p.stageWaitReady},
	}
	if err := p.runStages(ctx, r, stages); err != nil {
		return nil, err
	}

	rec := &store.Record{
		Name:          req.Name,
		VMName:        r.vmName,
		CodebaseType:  req.Source.Type,
		CodebasePath:  req.Source.Path,
		Port:          req.Port,
		Memory:        req.Memory,
		Disk:          req.Disk,
		CPUs:          req.CPUs,
		UbuntuVersion: req.Ubuntu,
		Created:       time.Now().UTC(),
	}
	if req.Source.Type == store.CodebaseGit {
		rec.GitDepth = req.Depth
		rec.GitBranch = req.Branch
	}
	if err := p.store.Save(rec); err != nil {
		return nil, fmt.Errorf("saving instance record: %w", err)
	}

	// Temporary materializations (clone, demo tree) are only removed once
	// everything succeeded; failed runs leave them behind for inspection.
	if r.cleanup != nil {
		r.cleanup()
	}

	p.logger.WithInstance(req.Name).Info("instance provisioned",
		"vm", r.vmName,
		"port", req.Port,
		"ip", r.ip,
		"ready", !r.readyTimeout)

	return &Result{Record: rec, IP: r.ip, ReadyTimeout: r.readyTimeout}, nil
}

func (p *Provisioner) resume(ctx context.Context, req Request, rec *store.Record) (*Result, error) {
	status, err := p.driver.State(ctx, rec.VMName)
	if err != nil {
		return nil, err
	}

	switch status {
	case vm.StatusRunning:
		// Best effort: the address is for display only.
		ip, _ := p.driver.IP(ctx, rec.VMName)
		p.logger.WithInstance(req.Name).Info("instance already running", "vm", rec.VMName)
		return &Result{Record: rec, IP: ip, AlreadyRunning: true}, nil

	case vm.StatusStopped:
		r := &run{req: req, vmName: rec.VMName, port: rec.Port}
		stages := []stage{
			{StateStarting, p.stageStart},
			{StateWaitingReady, p.stageWaitReady},
		}
		if err := p.runStages(ctx, r, stages); err != nil {
			return nil, err
		}

		p.logger.WithInstance(req.Name).Info("instance resumed",
			"vm", rec.VMName,
			"ip", r.ip,
			"ready", !r.readyTimeout)
		return &Result{Record: rec, IP: r.ip, Resumed: true, ReadyTimeout: r.readyTimeout}, nil

	default:
		return nil, errors.NewProvisionError(
			fmt.Sprintf("the backing VM %s is missing or unrecognizable; run 'grokbox destroy %s' and start again", rec.VMName, req.Name),
			nil).WithInstance(req.Name)
	}
}

func (p *Provisioner) runStages(ctx context.Context, r *run, stages []stage) error {
	log := p.logger.WithInstance(r.req.Name)
	for _, st := range stages {
		log.WithStage(string(st.state)).Info("entering stage")
		if p.progress != nil {
			p.progress(st.state)
		}
		if err := st.run(ctx, r); err != nil {
			return errors.NewProvisionError(fmt.Sprintf("stage %s failed", st.state), err).
				WithInstance(r.req.Name).
				WithStage(string(st.state))
		}
	}
	return nil
}

func (p *Provisioner) stageCreate(ctx context.Context, r *run) error {
	return p.driver.Launch(ctx, vm.LaunchSpec{
		Name:   r.vmName,
		Image:  r.req.Ubuntu,
		Memory: r.req.Memory,
		Disk:   r.req.Disk,
		CPUs:   r.req.CPUs,
	})
}

func (p *Provisioner) stageTransferArtifacts(ctx context.Context, r *run) error {
	if err := p.deps.Ensure(ctx, r.req.NoCache); err != nil {
		return err
	}

	// Prepare the guest layout and hand it to the default user so the
	// transfers below don't need root.
	if _, err := p.driver.Exec(ctx, r.vmName, []string{"sudo", "mkdir", "-p", guestDepsDir, guestSrcRoot}); err != nil {
		return err
	}
	if _, err := p.driver.Exec(ctx, r.vmName, []string{"sudo", "chown", "-R", "ubuntu:ubuntu", guestRoot}); err != nil {
		return err
	}

	return p.driver.TransferTree(ctx, p.deps.Dir(), r.vmName, guestDepsDir)
}

func (p *Provisioner) stageMaterializeCodebase(ctx context.Context, r *run) error {
	dir, cleanup, err := p.resolver.Materialize(ctx, r.req.Source, codebase.MaterializeOptions{
		Depth:  r.req.Depth,
		Branch: r.req.Branch,
	})
	if err != nil {
		return err
	}
	r.srcDir = dir
	r.cleanup = cleanup

	return p.driver.TransferTree(ctx, dir, r.vmName, r.guestSrcDir())
}

func (p *Provisioner) stageInstall(ctx context.Context, r *run) error {
	argv := []string{
		"sudo", "bash", path.Join(guestDepsDir, "install.sh"),
		"--deps", guestDepsDir,
		"--source", r.guestSrcDir(),
		"--port", strconv.Itoa(r.port),
		"--project-name", r.req.Source.Project,
		"--indexer-memory", strconv.Itoa(r.req.IndexerMemoryMB),
		"--non-interactive",
	}
	_, err := p.driver.Exec(ctx, r.vmName, argv)
	return err
}

func (p *Provisioner) stageStart(ctx context.Context, r *run) error {
	return p.driver.Start(ctx, r.vmName)
}

func (p *Provisioner) stageWaitReady(ctx context.Context, r *run) error {
	ip, err := p.driver.IP(ctx, r.vmName)
	if err != nil {
		return err
	}
	r.ip = ip
	if ip == "" {
		p.logger.WithInstance(r.req.Name).Warn("vm reported no address, skipping readiness probe",
			"vm", r.vmName)
		r.readyTimeout = true
		return nil
	}

	probePath := p.readiness.Path
	if probePath == "" {
		probePath = "/"
	}
	url := fmt.Sprintf("http://%s:%d%s", ip, r.port, probePath)

	log := p.logger.WithInstance(r.req.Name)
	log.Info("waiting for service readiness",
		"url", url,
		"max_attempts", p.readiness.MaxAttempts,
		"interval", p.readiness.Interval().String())

	result := probe.WaitUntil(ctx, p.readiness.MaxAttempts, p.readiness.Interval(), func(ctx context.Context) bool {
		return p.prober.Probe(ctx, url)
	})
	switch result {
	case probe.Ready:
		return nil
	case probe.Cancelled:
		return ctx.Err()
	default:
		// A service that is still indexing a big codebase can outlast the
		// probe window. Leave it running and warn instead of tearing it
		// down.
		log.Warn("service did not become ready in time", "url", url)
		r.readyTimeout = true
		return nil
	}
}
