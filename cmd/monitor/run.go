package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/monitor"
)

var errRunFailed = errors.New("monitoring run finished with errors")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the checks once for every connected tenant",
	Long: `Run the checks once for every connected tenant and print the run summary as JSON.

The command exits non-zero when any tenant or check failed. With --dry-run the
checks run but no alert or last-checked timestamp is written.`,
	RunE: runMonitor,
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "Analyse without writing alerts")
	runCmd.Flags().StringSlice("checks", nil, "Only run these check ids")
	runCmd.Flags().StringSlice("tenants", nil, "Only run for these tenant ids")
	runCmd.Flags().Bool("push-metrics", true, "Push run metrics to Mimir when configured")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	checkIDs, _ := cmd.Flags().GetStringSlice("checks")
	tenantIDs, _ := cmd.Flags().GetStringSlice("tenants")
	pushMetrics, _ := cmd.Flags().GetBool("push-metrics")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.Logger.Sync()

	if err := a.Config.ValidateMonitor(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if a.Config.Monitor.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.Monitor.RunTimeout)
		defer cancel()
	}

	m := a.Monitor(a.Checks())
	result, err := m.Run(ctx, monitor.RunOptions{
		DryRun:    dryRun,
		CheckIDs:  checkIDs,
		TenantIDs: tenantIDs,
	})
	if err != nil {
		return err
	}

	if !dryRun {
		if counts, err := a.Alerts.CountOpenAlerts(ctx); err != nil {
			a.Logger.Warn("Failed to count open alerts", zap.Error(err))
		} else {
			a.Metrics.SetOpenAlerts(counts)
		}
	}
	if pushMetrics {
		if err := a.Metrics.Push(ctx); err != nil {
			a.Logger.Warn("Failed to push metrics", zap.Error(err))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if !result.Success() {
		return errRunFailed
	}
	return nil
}
