package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/app"
	"github.com/leozw/ads-guardian/internal/config"
	"github.com/leozw/ads-guardian/internal/logging"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:           "ads-monitor",
	Short:         "Ads account anomaly monitor",
	Long:          "Runs the ads account checks for every connected tenant and records the resulting alerts.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (json, console); overrides the config")

	rootCmd.AddCommand(runCmd, checksCmd, migrateCmd, tenantsCmd)
}

// bootstrap loads .env and the config file and builds the process logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openApp() (*app.App, error) {
	cfg, logger, err := bootstrap()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
