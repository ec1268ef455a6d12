package checks

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

const (
	thresholdLostISMedium      = "budget_lost_is_medium_pct"
	thresholdLostISHigh        = "budget_lost_is_high_pct"
	thresholdLostISImpressions = "budget_lost_is_min_impressions"
)

// BudgetLostImpressionShare reports search campaigns that lose a meaningful
// share of their possible impressions because the budget runs out.
type BudgetLostImpressionShare struct {
	base
}

func NewBudgetLostImpressionShare(deps Deps) *BudgetLostImpressionShare {
	return &BudgetLostImpressionShare{base: newBase(
		"budget_lost_impression_share",
		"Impression share lost to budget",
		"Search campaigns losing impressions because of insufficient budget",
		deps.Now,
	)}
}

type lostShareCampaign struct {
	ID          string        `json:"campaignId"`
	Name        string        `json:"campaignName"`
	LostPct     float64       `json:"lostImpressionSharePct"`
	Impressions int64         `json:"impressions"`
	Severity    core.Severity `json:"severity"`
}

type lostShareTotals struct {
	name        string
	impressions int64
	weighted    float64
}

func (c *BudgetLostImpressionShare) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	mediumPct := tenant.Thresholds.Get(thresholdLostISMedium, 10)
	highPct := tenant.Thresholds.Get(thresholdLostISHigh, 20)
	minImpressions := int64(tenant.Thresholds.Get(thresholdLostISImpressions, 1000))

	window := daysAgo(tenant.Local(c.now()), 7, 1)
	rows, err := query(ctx, client, fmt.Sprintf(`
		SELECT campaign.id, campaign.name, segments.date, metrics.impressions,
		       metrics.search_budget_lost_impression_share
		FROM campaign
		WHERE campaign.status = 'ENABLED'
		  AND campaign.advertising_channel_type = 'SEARCH'
		  AND %s`, window.gaql()))
	if err != nil {
		return nil, fmt.Errorf("failed to load impression share: %w", err)
	}

	totals := make(map[string]*lostShareTotals)
	for _, row := range rows {
		id := row.String("campaign.id")
		t, ok := totals[id]
		if !ok {
			t = &lostShareTotals{name: row.String("campaign.name")}
			totals[id] = t
		}
		impressions := row.Int("metrics.impressions")
		t.impressions += impressions
		// the share is a 0..1 fraction per day; weight it by that day's volume
		t.weighted += row.Float("metrics.searchBudgetLostImpressionShare") * float64(impressions)
	}

	var flagged []lostShareCampaign
	for id, t := range totals {
		if t.impressions < minImpressions {
			continue
		}
		lost := round2(t.weighted / float64(t.impressions) * 100)
		if lost < mediumPct {
			continue
		}
		severity := core.SeverityMedium
		if lost >= highPct {
			severity = core.SeverityHigh
		}
		flagged = append(flagged, lostShareCampaign{
			ID:          id,
			Name:        t.name,
			LostPct:     lost,
			Impressions: t.impressions,
			Severity:    severity,
		})
	}

	details := core.Details{"period": window.details(), "campaignsChecked": len(totals)}
	if len(flagged) == 0 {
		return c.okResult(details), nil
	}

	sort.Slice(flagged, func(i, j int) bool { return flagged[i].LostPct > flagged[j].LostPct })
	details["campaigns"] = flagged
	worst := flagged[0]

	return c.warningResult(len(flagged), &core.AlertData{
		Title:            fmt.Sprintf("%d campaign(s) losing impressions to budget", len(flagged)),
		ShortDescription: fmt.Sprintf("Up to %.1f%% of eligible impressions lost to budget (%s) over the last 7 days.", worst.LostPct, worst.Name),
		Impact:           "Ads are not shown to part of the audience already being targeted.",
		SuggestedActions: []string{
			"Increase budget on campaigns with a profitable cost per conversion",
			"Shift budget from campaigns that are not budget limited",
			"Lower bids to buy more clicks within the same budget",
		},
		Severity: worst.Severity,
	}, details), nil
}
