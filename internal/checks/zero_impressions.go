package checks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

const (
	thresholdZeroImpressionsMinAgeHours  = "zero_impressions_min_age_hours"
	thresholdZeroImpressionsLookbackDays = "zero_impressions_lookback_days"
)

type ZeroImpressions struct {
	base
}

func NewZeroImpressions(deps Deps) *ZeroImpressions {
	return &ZeroImpressions{base: newBase(
		"zero_impressions",
		"Zero impressions",
		"Enabled campaigns that served no impressions over the lookback window",
		deps.Now,
	)}
}

type zeroDeliveryCampaign struct {
	ID        string `json:"campaignId"`
	Name      string `json:"campaignName"`
	StartDate string `json:"startDate"`
	AgeHours  int    `json:"ageHours"`
}

func (c *ZeroImpressions) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	now := tenant.Local(c.now())
	minAge := time.Duration(tenant.Thresholds.Get(thresholdZeroImpressionsMinAgeHours, 24)) * time.Hour
	lookback := int(tenant.Thresholds.Get(thresholdZeroImpressionsLookbackDays, 3))
	if lookback < 1 {
		lookback = 1
	}
	window := daysAgo(now, lookback, 1)

	campaigns, err := query(ctx, client, `
		SELECT campaign.id, campaign.name, campaign.start_date
		FROM campaign
		WHERE campaign.status = 'ENABLED'
		  AND campaign.serving_status = 'SERVING'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	if len(campaigns) == 0 {
		return c.okResult(core.Details{"campaignsChecked": 0}), nil
	}

	metrics, err := query(ctx, client, fmt.Sprintf(`
		SELECT campaign.id, metrics.impressions
		FROM campaign
		WHERE campaign.status = 'ENABLED'
		  AND %s`, window.gaql()))
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign impressions: %w", err)
	}

	impressions := make(map[string]int64)
	for _, row := range metrics {
		impressions[row.String("campaign.id")] += row.Int("metrics.impressions")
	}

	var flagged []zeroDeliveryCampaign
	eligible := 0
	for _, row := range campaigns {
		id := row.String("campaign.id")
		startDate := row.String("campaign.startDate")

		var age time.Duration
		if start, err := time.ParseInLocation(dateLayout, startDate, now.Location()); err == nil {
			age = now.Sub(start)
		} else {
			// without a start date the campaign is treated as old enough
			age = minAge
		}
		if age < minAge {
			continue
		}
		eligible++

		if impressions[id] > 0 {
			continue
		}
		flagged = append(flagged, zeroDeliveryCampaign{
			ID:        id,
			Name:      row.String("campaign.name"),
			StartDate: startDate,
			AgeHours:  int(age.Hours()),
		})
	}

	details := core.Details{
		"campaignsChecked": eligible,
		"lookbackDays":     lookback,
		"period":           window.details(),
	}
	if len(flagged) == 0 {
		return c.okResult(details), nil
	}

	sort.Slice(flagged, func(i, j int) bool { return flagged[i].Name < flagged[j].Name })
	details["campaigns"] = flagged

	severity := core.SeverityHigh
	if len(flagged) == eligible {
		severity = core.SeverityCritical
	}

	logger.Info("Campaigns without impressions",
		zap.Int("count", len(flagged)),
		zap.Int("eligible", eligible),
	)

	return c.severityResult(len(flagged), &core.AlertData{
		Title:            fmt.Sprintf("%d campaign(s) with zero impressions", len(flagged)),
		ShortDescription: fmt.Sprintf("%d enabled campaign(s) served no impressions in the last %d day(s).", len(flagged), lookback),
		Impact:           "Campaigns that do not serve generate no traffic or conversions while appearing active.",
		SuggestedActions: []string{
			"Check bids and budgets against the campaign's targeting",
			"Review ad approval status and keyword eligibility",
			"Verify targeting (locations, audiences, schedule) is not overly restrictive",
		},
		Severity: severity,
	}, details), nil
}
