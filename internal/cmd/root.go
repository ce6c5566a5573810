package cmd

import (
	"context"
	"strings"

	"github.com/grokbox/grokbox/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "grokbox",
	Short: "Disposable code-search environments on local VMs",
	Long: `Grokbox gives every codebase its own throwaway VM running a source
indexing and search service. Point it at a directory or a git URL,
get back a named instance with a service URL, and destroy it when
you're done.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ErrSilent signals a non-zero exit whose message was already printed.
// main checks for it so commands like status can own their output.
var ErrSilent = silentError{}

type silentError struct{}

func (silentError) Error() string { return "" }

// Execute runs the root command with ctx plumbed through to every verb.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

var verbose bool

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ~/.config/grokbox/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/grokbox")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("GROKBOX")
	// Replace dots with underscores for nested keys in env vars
	// e.g., GROKBOX_DEFAULTS_PORT for defaults.port
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
