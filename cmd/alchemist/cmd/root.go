// Package cmd implements the CLI commands for alchemist.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bybrooklyn/alchemist/internal/config"
	"github.com/bybrooklyn/alchemist/internal/observability"
	"github.com/bybrooklyn/alchemist/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "alchemist",
	Short:   "Media library re-encoding automation server",
	Version: version.Short(),
	Long: `alchemist watches a media library, decides per file whether
re-encoding into a modern codec (AV1/HEVC/H.264) will save meaningful
space at acceptable quality, drives ffmpeg to produce the new file,
verifies the result, and commits or reverts the change.

It exposes a REST API and a live event stream for the dashboard.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/alchemist, $HOME/.alchemist)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format override (text, json)")
}

// loadConfig loads configuration and applies CLI logging overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	// CLI flags override env and file only when explicitly set.
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Logging.Format, _ = cmd.Flags().GetString("log-format")
	}
	return cfg, nil
}

// setupLogger builds the process logger and installs it as the default.
func setupLogger(cfg *config.Config) {
	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)
}
