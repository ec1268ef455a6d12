package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/checks"
	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

type tenantJob struct {
	index  int
	tenant *core.Tenant
}

type worker struct {
	id      int
	monitor *Monitor
	checks  []checks.Check
	dryRun  bool
	logger  *zap.Logger
}

// start drains jobs; each job writes only its own slot in summaries.
func (w *worker) start(ctx context.Context, jobs <-chan tenantJob, summaries []TenantSummary) {
	for job := range jobs {
		summaries[job.index] = w.processTenant(ctx, job.tenant)
	}
}

func (w *worker) processTenant(ctx context.Context, t *core.Tenant) (summary TenantSummary) {
	start := time.Now()
	m := w.monitor
	summary = TenantSummary{TenantID: t.ID, TenantName: t.Name}
	logger := w.logger.With(zap.String("tenant_id", t.ID), zap.String("tenant_name", t.Name))

	fail := func(format string, args ...interface{}) {
		summary.Errors = append(summary.Errors, fmt.Sprintf("tenant %s: ", t.Name)+fmt.Sprintf(format, args...))
	}

	defer func() {
		summary.DurationMs = time.Since(start).Milliseconds()
		if m.metrics != nil {
			m.metrics.RecordTenant(t.ID, summary.Processed)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Tenant processing panicked", zap.Any("panic", r), zap.Stack("stack"))
			summary.Processed = false
			fail("panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		fail("run cancelled before processing: %v", err)
		return summary
	}

	cfg := core.NewTenantConfig(t, m.credentials)
	client := m.clients(cfg)

	if err := client.VerifyConnection(ctx); err != nil {
		logger.Error("Connection verification failed, skipping tenant", zap.Error(err))
		fail("connection verification failed: %v", err)
		return summary
	}

	loc, err := googleads.AccountLocation(ctx, client)
	if err != nil {
		logger.Warn("Could not determine account time zone, using UTC", zap.Error(err))
		loc = time.UTC
	}
	cfg.Location = loc

	logger.Info("Processing tenant", zap.Int("checks", len(w.checks)), zap.String("time_zone", loc.String()))

	for _, check := range w.checks {
		if err := ctx.Err(); err != nil {
			fail("run cancelled: %v", err)
			return summary
		}

		checkLogger := logger.With(zap.String("check_id", check.ID()))
		checkStart := time.Now()
		result, err := m.runCheck(ctx, check, client, cfg, checkLogger)
		summary.ChecksRun++

		if err != nil {
			checkLogger.Error("Check failed", zap.Error(err), zap.Duration("duration", time.Since(checkStart)))
			if m.metrics != nil {
				m.metrics.RecordCheck(t.ID, check.ID(), "", 0, time.Since(checkStart))
			}
			fail("check %s: %v", check.ID(), err)
			if googleads.IsAuthError(err) {
				// an auth failure ends the tenant's run
				return summary
			}
			continue
		}

		if m.metrics != nil {
			m.metrics.RecordCheck(t.ID, check.ID(), result.Status, result.Count, time.Since(checkStart))
		}
		checkLogger.Debug("Check completed",
			zap.String("status", string(result.Status)),
			zap.Int("count", result.Count),
			zap.Duration("duration", time.Since(checkStart)),
		)

		if err := w.forward(ctx, cfg, result, &summary, checkLogger); err != nil {
			checkLogger.Error("Failed to forward check result", zap.Error(err))
			fail("check %s: forward result: %v", check.ID(), err)
		}
	}

	summary.Processed = true
	logger.Info("Tenant processed",
		zap.Int("checks_run", summary.ChecksRun),
		zap.Int("findings", summary.Findings),
		zap.Int("errors", len(summary.Errors)),
	)
	return summary
}

// forward hands a result to the alert engine: ok results resolve, results
// carrying alert data create or dedup an alert.
func (w *worker) forward(ctx context.Context, tenant *core.TenantConfig, result *core.CheckResult, summary *TenantSummary, logger *zap.Logger) error {
	m := w.monitor

	if result.Status == core.StatusOK {
		if w.dryRun {
			return nil
		}
		n, err := m.alerts.AutoResolveIfFixed(ctx, tenant.TenantID, m.platform, result.CheckID)
		if err != nil {
			return err
		}
		summary.AlertsResolved += n
		return nil
	}

	summary.Findings++
	if !result.NeedsAlert() {
		logger.Warn("Non-ok result without alert data", zap.String("status", string(result.Status)))
		return nil
	}

	if w.dryRun {
		summary.AlertsCreated++
		logger.Info("Dry run: would raise alert",
			zap.String("severity", string(result.AlertData.Severity)),
			zap.String("title", result.AlertData.Title),
			zap.Int("count", result.Count),
		)
		return nil
	}

	outcome, err := m.alerts.CreateAlertFromCheckResult(ctx, tenant.TenantID, tenant.TenantName, m.platform, result)
	if err != nil {
		return err
	}
	if outcome == nil {
		return errors.New("alert engine returned no outcome")
	}
	if outcome.Skipped {
		summary.AlertsSkipped++
	} else {
		summary.AlertsCreated++
	}
	return nil
}
