package checks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

const (
	thresholdDropWarning     = "performance_drop_warning_pct"
	thresholdDropCritical    = "performance_drop_critical_pct"
	thresholdDropMinBaseline = "performance_drop_min_baseline"
)

type PerformanceDrop struct {
	base
}

func NewPerformanceDrop(deps Deps) *PerformanceDrop {
	return &PerformanceDrop{base: newBase(
		"performance_drop",
		"Performance drop",
		"Conversions over the last 7 days compared with the previous 7 days",
		deps.Now,
	)}
}

func (c *PerformanceDrop) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	warnDrop := tenant.Thresholds.Get(thresholdDropWarning, 25)
	critDrop := tenant.Thresholds.Get(thresholdDropCritical, 50)
	minBaseline := tenant.Thresholds.Get(thresholdDropMinBaseline, 1)

	now := tenant.Local(c.now())
	current, previous := daysAgo(now, 7, 1), daysAgo(now, 14, 8)

	cur, prev, err := accountDaily(ctx, client, current, previous)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversions: %w", err)
	}

	details := core.Details{
		"currentPeriod":  cur.details(current),
		"previousPeriod": prev.details(previous),
	}

	if prev.Conversions == 0 || prev.Conversions < minBaseline {
		details["skipped"] = "no conversion baseline in the previous period"
		return c.okResult(details), nil
	}

	drop := round2((prev.Conversions - cur.Conversions) / prev.Conversions * 100)
	details["dropPct"] = drop

	if drop < warnDrop {
		return c.okResult(details), nil
	}

	severity := core.SeverityHigh
	if drop >= critDrop || cur.Conversions == 0 {
		severity = core.SeverityCritical
	}

	logger.Info("Conversion drop detected",
		zap.Float64("drop_pct", drop),
		zap.Float64("current", cur.Conversions),
		zap.Float64("previous", prev.Conversions),
	)

	title := fmt.Sprintf("Conversions down %.0f%% week over week", drop)
	if cur.Conversions == 0 {
		title = "Conversions dropped to zero"
	}

	return c.severityResult(1, &core.AlertData{
		Title:            title,
		ShortDescription: fmt.Sprintf("%.1f conversions in the last 7 days versus %.1f in the previous 7 days.", cur.Conversions, prev.Conversions),
		Impact:           "Fewer conversions at similar spend directly reduces return on ad spend.",
		SuggestedActions: []string{
			"Check conversion tracking tags and recent website changes",
			"Review campaigns for paused ads, budget limits or disapprovals",
			"Compare traffic and conversion rate to isolate the cause",
		},
		Severity: severity,
	}, details), nil
}
