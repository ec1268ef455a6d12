package checks

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

const thresholdAdStrengthImpressions = "ad_strength_min_impressions"

type AdStrength struct {
	base
}

func NewAdStrength(deps Deps) *AdStrength {
	return &AdStrength{base: newBase(
		"ad_strength",
		"Weak ad strength",
		"Responsive search ads rated POOR that still serve impressions",
		deps.Now,
	)}
}

type weakAd struct {
	AdID        string `json:"adId"`
	Strength    string `json:"adStrength"`
	Impressions int64  `json:"impressions"`
	Campaign    string `json:"campaignName"`
	AdGroup     string `json:"adGroupName"`
}

func (c *AdStrength) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	minImpressions := int64(tenant.Thresholds.Get(thresholdAdStrengthImpressions, 100))

	rows, err := query(ctx, client, `
		SELECT ad_group_ad.ad.id, ad_group_ad.ad_strength, campaign.name, ad_group.name,
		       metrics.impressions
		FROM ad_group_ad
		WHERE ad_group_ad.status = 'ENABLED'
		  AND ad_group_ad.ad.type = 'RESPONSIVE_SEARCH_AD'
		  AND campaign.status = 'ENABLED'
		  AND segments.date DURING LAST_30_DAYS`)
	if err != nil {
		return nil, fmt.Errorf("failed to load ad strength: %w", err)
	}

	var flagged []weakAd
	for _, row := range rows {
		if row.String("adGroupAd.adStrength") != "POOR" {
			continue
		}
		impressions := row.Int("metrics.impressions")
		if impressions < minImpressions {
			continue
		}
		flagged = append(flagged, weakAd{
			AdID:        row.String("adGroupAd.ad.id"),
			Strength:    "POOR",
			Impressions: impressions,
			Campaign:    row.String("campaign.name"),
			AdGroup:     row.String("adGroup.name"),
		})
	}

	details := core.Details{"adsChecked": len(rows)}
	if len(flagged) == 0 {
		return c.okResult(details), nil
	}

	sort.Slice(flagged, func(i, j int) bool { return flagged[i].Impressions > flagged[j].Impressions })
	details["ads"] = flagged

	return c.warningResult(len(flagged), &core.AlertData{
		Title:            fmt.Sprintf("%d responsive search ad(s) with poor ad strength", len(flagged)),
		ShortDescription: fmt.Sprintf("%d serving ad(s) are rated POOR.", len(flagged)),
		Impact:           "Poor ads are shown less often and usually convert worse than well-built ones.",
		SuggestedActions: []string{
			"Add more unique headlines and descriptions",
			"Include popular keywords in the headlines",
			"Reduce pinning so more combinations can be tested",
		},
		Severity: core.SeverityMedium,
	}, details), nil
}
