package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "vm.launch_timeout_minutes")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate launch defaults
	errors = append(errors, c.validateDefaults()...)

	// Validate VM config
	errors = append(errors, c.validateVM()...)

	// Validate Deps config
	errors = append(errors, c.validateDeps()...)

	// Validate Readiness config
	errors = append(errors, c.validateReadiness()...)

	// Validate Logging config
	errors = append(errors, c.validateLogging()...)

	// Validate Paths config
	errors = append(errors, c.validatePaths()...)

	return errors
}

// validateDefaults validates the DefaultsConfig
func (c *Config) validateDefaults() []ValidationError {
	var errors []ValidationError

	// Multipass rejects memory below 128M
	const minMemoryBytes = 128 * humanize.MByte
	errors = append(errors, validateSize(c.Defaults.Memory, "defaults.memory", minMemoryBytes, "128M")...)

	// Multipass rejects disks below 512M
	const minDiskBytes = 512 * humanize.MByte
	errors = append(errors, validateSize(c.Defaults.Disk, "defaults.disk", minDiskBytes, "512M")...)

	const maxCPUs = 128
	if c.Defaults.CPUs < 1 {
		errors = append(errors, ValidationError{
			Field:   "defaults.cpus",
			Value:   c.Defaults.CPUs,
			Message: "must be at least 1",
		})
	}
	if c.Defaults.CPUs > maxCPUs {
		errors = append(errors, ValidationError{
			Field:   "defaults.cpus",
			Value:   c.Defaults.CPUs,
			Message: fmt.Sprintf("exceeds maximum of %d", maxCPUs),
		})
	}

	if c.Defaults.Port < 1 || c.Defaults.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "defaults.port",
			Value:   c.Defaults.Port,
			Message: "must be between 1 and 65535",
		})
	}

	if c.Defaults.Ubuntu == "" {
		errors = append(errors, ValidationError{
			Field:   "defaults.ubuntu",
			Value:   c.Defaults.Ubuntu,
			Message: "cannot be empty",
		})
	}

	// Indexer memory bounds
	const minIndexerMemoryMB = 256
	const maxIndexerMemoryMB = 1_048_576 // 1TB
	if c.Defaults.IndexerMemoryMB < minIndexerMemoryMB {
		errors = append(errors, ValidationError{
			Field:   "defaults.indexer_memory_mb",
			Value:   c.Defaults.IndexerMemoryMB,
			Message: fmt.Sprintf("must be at least %dMB", minIndexerMemoryMB),
		})
	}
	if c.Defaults.IndexerMemoryMB > maxIndexerMemoryMB {
		errors = append(errors, ValidationError{
			Field:   "defaults.indexer_memory_mb",
			Value:   c.Defaults.IndexerMemoryMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxIndexerMemoryMB),
		})
	}

	return errors
}

// validateSize checks that a size string parses and meets a minimum
func validateSize(value, field string, minBytes uint64, minLabel string) []ValidationError {
	var errors []ValidationError

	if value == "" {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   value,
			Message: "cannot be empty",
		})
		return errors
	}

	parsed, err := humanize.ParseBytes(value)
	if err != nil {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   value,
			Message: "must be a size like '4G' or '2048M'",
		})
		return errors
	}

	if parsed < minBytes {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must be at least %s", minLabel),
		})
	}

	return errors
}

// validateVM validates the VMConfig
func (c *Config) validateVM() []ValidationError {
	var errors []ValidationError

	if c.VM.MultipassBinary == "" {
		errors = append(errors, ValidationError{
			Field:   "vm.multipass_binary",
			Value:   c.VM.MultipassBinary,
			Message: "cannot be empty",
		})
	}

	// One day is a generous cap for any single backend operation
	const maxTimeoutMinutes = 1440

	timeouts := []struct {
		field string
		value int
	}{
		{"vm.launch_timeout_minutes", c.VM.LaunchTimeoutMinutes},
		{"vm.transfer_timeout_minutes", c.VM.TransferTimeoutMinutes},
		{"vm.exec_timeout_minutes", c.VM.ExecTimeoutMinutes},
	}
	for _, t := range timeouts {
		if t.value < 1 {
			errors = append(errors, ValidationError{
				Field:   t.field,
				Value:   t.value,
				Message: "must be at least 1",
			})
		}
		if t.value > maxTimeoutMinutes {
			errors = append(errors, ValidationError{
				Field:   t.field,
				Value:   t.value,
				Message: fmt.Sprintf("exceeds maximum of %d minutes", maxTimeoutMinutes),
			})
		}
	}

	return errors
}

// validateDeps validates the DepsConfig
func (c *Config) validateDeps() []ValidationError {
	var errors []ValidationError

	if c.Deps.Downloader == "" {
		errors = append(errors, ValidationError{
			Field:   "deps.downloader",
			Value:   c.Deps.Downloader,
			Message: "cannot be empty",
		})
	}

	return errors
}

// validateReadiness validates the ReadinessConfig
func (c *Config) validateReadiness() []ValidationError {
	var errors []ValidationError

	const maxAttemptsLimit = 1000
	if c.Readiness.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "readiness.max_attempts",
			Value:   c.Readiness.MaxAttempts,
			Message: "must be at least 1",
		})
	}
	if c.Readiness.MaxAttempts > maxAttemptsLimit {
		errors = append(errors, ValidationError{
			Field:   "readiness.max_attempts",
			Value:   c.Readiness.MaxAttempts,
			Message: fmt.Sprintf("exceeds maximum of %d", maxAttemptsLimit),
		})
	}

	const maxIntervalSeconds = 300
	if c.Readiness.IntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "readiness.interval_seconds",
			Value:   c.Readiness.IntervalSeconds,
			Message: "must be at least 1",
		})
	}
	if c.Readiness.IntervalSeconds > maxIntervalSeconds {
		errors = append(errors, ValidationError{
			Field:   "readiness.interval_seconds",
			Value:   c.Readiness.IntervalSeconds,
			Message: fmt.Sprintf("exceeds maximum of %d seconds", maxIntervalSeconds),
		})
	}

	// Empty path is valid; the prober falls back to "/"
	if c.Readiness.Path != "" && !strings.HasPrefix(c.Readiness.Path, "/") {
		errors = append(errors, ValidationError{
			Field:   "readiness.path",
			Value:   c.Readiness.Path,
			Message: "must start with '/'",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	paths := []struct {
		field string
		value string
	}{
		{"paths.state_dir", c.Paths.StateDir},
		{"paths.deps_dir", c.Paths.DepsDir},
		{"paths.log_dir", c.Paths.LogDir},
	}

	for _, p := range paths {
		if p.value == "" {
			continue
		}

		// Check for null bytes which are invalid in paths
		if strings.ContainsRune(p.value, '\x00') {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Value:   p.value,
				Message: "path contains invalid null character",
			})
		}

		// Reasonable path length limit (most filesystems have limits around 4096)
		const maxPathLength = 4096
		if len(p.value) > maxPathLength {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Value:   p.value,
				Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
			})
		}
	}

	return errors
}
