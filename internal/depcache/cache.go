// Package depcache maintains the host-side cache of service dependencies
// that every instance receives. Populating the cache is delegated to an
// external downloader command; this package only decides when a download
// is needed and marks the result complete.
package depcache

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/grokbox/grokbox/internal/errors"
	"github.com/grokbox/grokbox/internal/logging"
)

// CompleteMarker is written into the cache directory after a successful
// download. A cache without it is treated as half-populated and refetched.
const CompleteMarker = ".complete"

// Downloader populates a dependency cache directory.
type Downloader interface {
	Download(ctx context.Context, dir string) error
}

// CommandDownloader invokes an external command with the cache directory as
// its only argument. The command owns everything about what the dependencies
// are and where they come from.
type CommandDownloader struct {
	command string
}

var _ Downloader = (*CommandDownloader)(nil)

func NewCommandDownloader(command string) *CommandDownloader {
	return &CommandDownloader{command: command}
}

func (d *CommandDownloader) Download(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, d.command, dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.NewBackendError("dependency download failed", err).
			WithOp("deps download").
			WithOutput(string(out))
	}
	return nil
}

// Cache is the on-disk dependency cache.
type Cache struct {
	dir        string
	downloader Downloader
	logger     *logging.Logger
}

// New returns a cache rooted at dir, populated by downloader when needed.
func New(dir string, downloader Downloader, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Cache{
		dir:        dir,
		downloader: downloader,
		logger:     logger,
	}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Ensure makes the cache ready for transfer. An absent, empty, or
// marker-less directory is populated via the downloader, as is any cache
// when force is set; a complete cache is reused unchanged. There is no
// versioning or expiry: a stale-but-complete cache is only refreshed by an
// explicit force.
func (c *Cache) Ensure(ctx context.Context, force bool) error {
	if !force {
		complete, err := c.isComplete()
		if err != nil {
			return err
		}
		if complete {
			c.logger.Debug("dependency cache is complete, reusing", "dir", c.dir)
			return nil
		}
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	// Clear any stale marker first so an interrupted download can't leave
	// a half-populated cache that looks complete.
	if err := os.Remove(c.markerPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing completion marker: %w", err)
	}

	c.logger.Info("populating dependency cache", "dir", c.dir, "force", force)
	if err := c.downloader.Download(ctx, c.dir); err != nil {
		return err
	}

	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(c.markerPath(), []byte(stamp), 0644); err != nil {
		return fmt.Errorf("writing completion marker: %w", err)
	}

	c.logger.Info("dependency cache populated", "dir", c.dir)
	return nil
}

func (c *Cache) isComplete() (bool, error) {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading cache directory: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}

	if _, err := os.Stat(c.markerPath()); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Cache) markerPath() string {
	return filepath.Join(c.dir, CompleteMarker)
}
