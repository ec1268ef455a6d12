package checks

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

const (
	thresholdSpendGrowthWarning  = "spend_growth_warning_pct"
	thresholdSpendGrowthCritical = "spend_growth_critical_pct"
	thresholdResultTolerance     = "result_growth_tolerance_pct"
	thresholdResultGrowthFloor   = "result_growth_critical_max_pct"
	thresholdSpendMinimum        = "spend_min_per_period"
)

// SpendWithoutValue compares the last seven days with the seven before and
// flags spend that grows faster than the results it buys.
type SpendWithoutValue struct {
	base
}

func NewSpendWithoutValue(deps Deps) *SpendWithoutValue {
	return &SpendWithoutValue{base: newBase(
		"spend_without_value",
		"Spend without value",
		"Spend growing without matching growth in conversions or conversion value",
		deps.Now,
	)}
}

func (c *SpendWithoutValue) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	warnGrowth := tenant.Thresholds.Get(thresholdSpendGrowthWarning, 30)
	critGrowth := tenant.Thresholds.Get(thresholdSpendGrowthCritical, 50)
	tolerance := tenant.Thresholds.Get(thresholdResultTolerance, 10)
	critResultMax := tenant.Thresholds.Get(thresholdResultGrowthFloor, 10)
	minSpend := tenant.Thresholds.Get(thresholdSpendMinimum, 100)

	now := tenant.Local(c.now())
	current, previous := daysAgo(now, 7, 1), daysAgo(now, 14, 8)

	cur, prev, err := accountDaily(ctx, client, current, previous)
	if err != nil {
		return nil, fmt.Errorf("failed to load account metrics: %w", err)
	}

	details := core.Details{
		"currentPeriod":  cur.details(current),
		"previousPeriod": prev.details(previous),
	}

	if cur.Cost < minSpend || prev.Cost < minSpend {
		details["skipped"] = fmt.Sprintf("spend below %s in at least one period", formatEUR(minSpend))
		return c.okResult(details), nil
	}

	spendGrowth := round2(growth(cur.Cost, prev.Cost))
	conversionGrowth := round2(growth(cur.Conversions, prev.Conversions))
	valueGrowth := round2(growth(cur.ConversionValue, prev.ConversionValue))
	resultGrowth := math.Max(conversionGrowth, valueGrowth)

	details["spendGrowthPct"] = spendGrowth
	details["conversionGrowthPct"] = conversionGrowth
	details["valueGrowthPct"] = valueGrowth
	details["resultGrowthPct"] = resultGrowth

	if spendGrowth < warnGrowth || resultGrowth >= spendGrowth-tolerance {
		return c.okResult(details), nil
	}

	severity := core.SeverityHigh
	if spendGrowth >= critGrowth && resultGrowth <= critResultMax {
		severity = core.SeverityCritical
	}

	logger.Info("Spend growing faster than results",
		zap.Float64("spend_growth_pct", spendGrowth),
		zap.Float64("result_growth_pct", resultGrowth),
	)

	return c.severityResult(1, &core.AlertData{
		Title:            fmt.Sprintf("Spend up %.0f%% without matching results", spendGrowth),
		ShortDescription: fmt.Sprintf("Spend grew %.1f%% week over week (%s → %s) while results grew only %.1f%%.", spendGrowth, formatEUR(prev.Cost), formatEUR(cur.Cost), resultGrowth),
		Impact:           "Additional budget is not producing additional conversions, raising cost per acquisition.",
		SuggestedActions: []string{
			"Identify which campaigns account for the spend increase",
			"Review recent bid strategy, budget or targeting changes",
			"Verify conversion tracking is recording all conversions",
		},
		Severity: severity,
	}, details), nil
}
