package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete grokbox configuration
type Config struct {
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Paths     PathsConfig     `mapstructure:"paths"`
	VM        VMConfig        `mapstructure:"vm"`
	Deps      DepsConfig      `mapstructure:"deps"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DefaultsConfig holds the per-instance launch defaults. Every value here
// can be overridden for a single instance with the matching `grokbox start`
// flag.
type DefaultsConfig struct {
	// Memory is the VM memory size passed through to multipass (e.g. "4G")
	Memory string `mapstructure:"memory"`
	// Disk is the VM disk size passed through to multipass (e.g. "40G")
	Disk string `mapstructure:"disk"`
	// CPUs is the number of virtual CPUs per VM
	CPUs int `mapstructure:"cpus"`
	// Port is the host port the index service is published on
	Port int `mapstructure:"port"`
	// Ubuntu is the Ubuntu image to launch (e.g. "24.04")
	Ubuntu string `mapstructure:"ubuntu"`
	// IndexerMemoryMB is the memory cap handed to the in-guest indexer
	IndexerMemoryMB int `mapstructure:"indexer_memory_mb"`
}

// PathsConfig controls where grokbox keeps host-side state
type PathsConfig struct {
	// StateDir is where instance records live (default: ~/.grokbox/instances)
	StateDir string `mapstructure:"state_dir"`
	// DepsDir is where the shared dependency cache lives (default: ~/.grokbox/deps)
	DepsDir string `mapstructure:"deps_dir"`
	// LogDir is where the debug log is written (default: ~/.grokbox/logs)
	LogDir string `mapstructure:"log_dir"`
}

// VMConfig controls how the multipass backend is driven
type VMConfig struct {
	// MultipassBinary is the multipass executable name or path
	MultipassBinary string `mapstructure:"multipass_binary"`
	// LaunchTimeoutMinutes bounds `multipass launch` (image download included)
	LaunchTimeoutMinutes int `mapstructure:"launch_timeout_minutes"`
	// TransferTimeoutMinutes bounds artifact and codebase transfers into the guest
	TransferTimeoutMinutes int `mapstructure:"transfer_timeout_minutes"`
	// ExecTimeoutMinutes bounds long in-guest commands (install, reindex)
	ExecTimeoutMinutes int `mapstructure:"exec_timeout_minutes"`
}

// DepsConfig controls dependency cache population
type DepsConfig struct {
	// Downloader is the host command that populates the dependency cache.
	// It is invoked as `<downloader> <cache-dir>`.
	Downloader string `mapstructure:"downloader"`
}

// ReadinessConfig controls how the index service is polled after provisioning
type ReadinessConfig struct {
	// MaxAttempts is how many times to poll before reporting a timeout
	MaxAttempts int `mapstructure:"max_attempts"`
	// IntervalSeconds is the pause between polls
	IntervalSeconds int `mapstructure:"interval_seconds"`
	// Path is the HTTP path probed on the instance port
	Path string `mapstructure:"path"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether the debug log file is written
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in MB before rotation
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep
	MaxBackups int `mapstructure:"max_backups"`
}

// ResolveStateDir returns the resolved instance-state directory.
// If StateDir is empty, it returns ~/.grokbox/instances.
// If StateDir starts with ~, it expands to the user's home directory.
// Relative paths are taken relative to the working directory.
func (p *PathsConfig) ResolveStateDir() string {
	return resolvePath(p.StateDir, filepath.Join(grokboxHome(), "instances"))
}

// ResolveDepsDir returns the resolved dependency cache directory.
// If DepsDir is empty, it returns ~/.grokbox/deps.
func (p *PathsConfig) ResolveDepsDir() string {
	return resolvePath(p.DepsDir, filepath.Join(grokboxHome(), "deps"))
}

// ResolveLogDir returns the resolved debug log directory.
// If LogDir is empty, it returns ~/.grokbox/logs.
func (p *PathsConfig) ResolveLogDir() string {
	return resolvePath(p.LogDir, filepath.Join(grokboxHome(), "logs"))
}

// grokboxHome returns the root of grokbox's host-side state (~/.grokbox)
func grokboxHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".grokbox"
	}
	return filepath.Join(home, ".grokbox")
}

// resolvePath expands ~ in path, falling back to fallback when path is empty
func resolvePath(path, fallback string) string {
	if path == "" {
		return fallback
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Memory:          "4G",
			Disk:            "40G",
			CPUs:            2,
			Port:            8080,
			Ubuntu:          "24.04",
			IndexerMemoryMB: 2048,
		},
		Paths: PathsConfig{
			StateDir: "", // Empty means use default: ~/.grokbox/instances
			DepsDir:  "", // Empty means use default: ~/.grokbox/deps
			LogDir:   "", // Empty means use default: ~/.grokbox/logs
		},
		VM: VMConfig{
			MultipassBinary:        "multipass",
			LaunchTimeoutMinutes:   10, // Image download can dominate the first launch
			TransferTimeoutMinutes: 30, // Dependency archives run to several GB
			ExecTimeoutMinutes:     45, // In-guest install plus initial indexing
		},
		Deps: DepsConfig{
			Downloader: "grokbox-fetch-deps",
		},
		Readiness: ReadinessConfig{
			MaxAttempts:     60,
			IntervalSeconds: 2,
			Path:            "/",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// LaunchTimeout returns the VM launch timeout as a time.Duration
func (c *VMConfig) LaunchTimeout() time.Duration {
	return time.Duration(c.LaunchTimeoutMinutes) * time.Minute
}

// TransferTimeout returns the transfer timeout as a time.Duration
func (c *VMConfig) TransferTimeout() time.Duration {
	return time.Duration(c.TransferTimeoutMinutes) * time.Minute
}

// ExecTimeout returns the in-guest exec timeout as a time.Duration
func (c *VMConfig) ExecTimeout() time.Duration {
	return time.Duration(c.ExecTimeoutMinutes) * time.Minute
}

// Interval returns the readiness poll interval as a time.Duration
func (c *ReadinessConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Launch defaults
	viper.SetDefault("defaults.memory", defaults.Defaults.Memory)
	viper.SetDefault("defaults.disk", defaults.Defaults.Disk)
	viper.SetDefault("defaults.cpus", defaults.Defaults.CPUs)
	viper.SetDefault("defaults.port", defaults.Defaults.Port)
	viper.SetDefault("defaults.ubuntu", defaults.Defaults.Ubuntu)
	viper.SetDefault("defaults.indexer_memory_mb", defaults.Defaults.IndexerMemoryMB)

	// Paths defaults
	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
	viper.SetDefault("paths.deps_dir", defaults.Paths.DepsDir)
	viper.SetDefault("paths.log_dir", defaults.Paths.LogDir)

	// VM defaults
	viper.SetDefault("vm.multipass_binary", defaults.VM.MultipassBinary)
	viper.SetDefault("vm.launch_timeout_minutes", defaults.VM.LaunchTimeoutMinutes)
	viper.SetDefault("vm.transfer_timeout_minutes", defaults.VM.TransferTimeoutMinutes)
	viper.SetDefault("vm.exec_timeout_minutes", defaults.VM.ExecTimeoutMinutes)

	// Deps defaults
	viper.SetDefault("deps.downloader", defaults.Deps.Downloader)

	// Readiness defaults
	viper.SetDefault("readiness.max_attempts", defaults.Readiness.MaxAttempts)
	viper.SetDefault("readiness.interval_seconds", defaults.Readiness.IntervalSeconds)
	viper.SetDefault("readiness.path", defaults.Readiness.Path)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "grokbox")
	}
	// Fall back to ~/.config/grokbox
	home, err := os.UserHomeDir()
	if err != nil {
		return ".grokbox"
	}
	return filepath.Join(home, ".config", "grokbox")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
