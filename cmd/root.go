package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lastsold-monitor/config"
	"lastsold-monitor/utils"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "lastsold-monitor",
	Short:         "Watches TCGplayer product pages and alerts on newly sold listings.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML/JSON config file (default ./"+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
}

// ExecuteContext runs the CLI and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and builds the logger it asks for.
func loadConfig() (*config.Config, *utils.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger := utils.NewLoggerWithOptions(cfg.LogOptions())
	if !cfg.EnvFileLoaded {
		logger.Debug("[config] No .env file found, using system env vars")
	}
	return cfg, logger, nil
}
