package cmd

import (
	"fmt"
	"os"

	"github.com/grokbox/grokbox/internal/codebase"
	"github.com/grokbox/grokbox/internal/config"
	"github.com/grokbox/grokbox/internal/depcache"
	"github.com/grokbox/grokbox/internal/errors"
	"github.com/grokbox/grokbox/internal/logging"
	"github.com/grokbox/grokbox/internal/ports"
	"github.com/grokbox/grokbox/internal/probe"
	"github.com/grokbox/grokbox/internal/provision"
	"github.com/grokbox/grokbox/internal/store"
	"github.com/grokbox/grokbox/internal/vm"
)

// app bundles the collaborators every verb needs. Each run constructs one,
// uses it, and closes it before exiting.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	store  *store.Store
	driver vm.Driver
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg)

	st := store.New(cfg.Paths.ResolveStateDir(), logger)
	driver := vm.NewMultipassDriver(cfg.VM.MultipassBinary, vm.Timeouts{
		Launch:   cfg.VM.LaunchTimeout(),
		Transfer: cfg.VM.TransferTimeout(),
		Exec:     cfg.VM.ExecTimeout(),
	}, logger)

	return &app{cfg: cfg, logger: logger, store: st, driver: driver}, nil
}

// newLogger builds the debug logger. A broken log directory must never
// keep the tool from running, so failures fall back to a no-op logger
// with a warning.
func newLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}

	logger, err := logging.NewLoggerWithRotation(cfg.Paths.ResolveLogDir(), level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: debug logging disabled: %v\n", err)
		return logging.NopLogger()
	}
	return logger
}

func (a *app) Close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// provisioner assembles the full pipeline. progress may be nil.
func (a *app) provisioner(progress func(provision.State)) *provision.Provisioner {
	downloader := depcache.NewCommandDownloader(a.cfg.Deps.Downloader)
	return provision.New(provision.Options{
		Store:     a.store,
		Driver:    a.driver,
		Ports:     ports.NewAllocator(a.store, a.driver, a.logger),
		Resolver:  codebase.NewResolver(a.logger),
		Deps:      depcache.New(a.cfg.Paths.ResolveDepsDir(), downloader, a.logger),
		Prober:    probe.NewHTTPProber(a.logger),
		Readiness: a.cfg.Readiness,
		Logger:    a.logger,
		Progress:  progress,
	})
}

// loadInstance fetches the record for verbs that require an existing
// instance, decorating the not-found case with a pointer at list.
func (a *app) loadInstance(name string) (*store.Record, error) {
	rec, err := a.store.Load(name)
	if err != nil {
		var notFound *errors.NotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w (run 'grokbox list' to see instances)", err)
		}
		return nil, err
	}
	return rec, nil
}
