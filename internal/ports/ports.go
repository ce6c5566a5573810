// Package ports checks requested service ports against instances that are
// already running.
//
// The check is advisory: it compares the requested port against grokbox's
// own records, not against OS-level socket bindings, so an unrelated
// process already listening on the port is not detected.
package ports

import (
	"context"
	"fmt"

	"github.com/grokbox/grokbox/internal/errors"
	"github.com/grokbox/grokbox/internal/logging"
	"github.com/grokbox/grokbox/internal/store"
	"github.com/grokbox/grokbox/internal/vm"
)

// Allocator validates port requests against the instance records.
type Allocator struct {
	records store.Lister
	states  vm.StateQuerier
	logger  *logging.Logger
}

// NewAllocator returns an allocator reading instance records from records
// and live VM states from states.
func NewAllocator(records store.Lister, states vm.StateQuerier, logger *logging.Logger) *Allocator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Allocator{
		records: records,
		states:  states,
		logger:  logger,
	}
}

// CheckAvailable reports whether port can be used by the instance named
// excluding. Only instances whose VM is currently running conflict: a port
// recorded by a stopped or unknown instance may be reused while that
// instance is parked. A conflict yields a PortConflictError naming the
// owning instance.
func (a *Allocator) CheckAvailable(ctx context.Context, port int, excluding string) error {
	records, err := a.records.List()
	if err != nil {
		return fmt.Errorf("listing instances: %w", err)
	}

	for _, rec := range records {
		if rec.Port != port || rec.Name == excluding {
			continue
		}

		status, err := a.states.State(ctx, rec.VMName)
		if err != nil {
			return fmt.Errorf("checking port %d against instance %q: %w", port, rec.Name, err)
		}
		if status == vm.StatusRunning {
			return errors.NewPortConflictError(port, rec.Name)
		}

		a.logger.Debug("port held by non-running instance, allowing reuse",
			"port", port,
			"instance", rec.Name,
			"status", string(status))
	}
	return nil
}
