package checks

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

type AdGroupsWithoutAds struct {
	base
}

func NewAdGroupsWithoutAds(deps Deps) *AdGroupsWithoutAds {
	return &AdGroupsWithoutAds{base: newBase(
		"ad_groups_without_ads",
		"Ad groups without ads",
		"Enabled ad groups in enabled campaigns that have no enabled ad",
		deps.Now,
	)}
}

type emptyAdGroup struct {
	ID       string `json:"adGroupId"`
	Name     string `json:"adGroupName"`
	Campaign string `json:"campaignName"`
}

func (c *AdGroupsWithoutAds) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	groups, err := query(ctx, client, `
		SELECT ad_group.id, ad_group.name, campaign.name
		FROM ad_group
		WHERE ad_group.status = 'ENABLED'
		  AND campaign.status = 'ENABLED'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ad groups: %w", err)
	}
	if len(groups) == 0 {
		return c.okResult(core.Details{"adGroupsChecked": 0}), nil
	}

	ads, err := query(ctx, client, `
		SELECT ad_group.id, ad_group_ad.ad.id
		FROM ad_group_ad
		WHERE ad_group_ad.status = 'ENABLED'
		  AND ad_group.status = 'ENABLED'
		  AND campaign.status = 'ENABLED'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ads: %w", err)
	}

	withAds := make(map[string]bool)
	for _, row := range ads {
		withAds[row.String("adGroup.id")] = true
	}

	var flagged []emptyAdGroup
	for _, row := range groups {
		id := row.String("adGroup.id")
		if withAds[id] {
			continue
		}
		flagged = append(flagged, emptyAdGroup{
			ID:       id,
			Name:     row.String("adGroup.name"),
			Campaign: row.String("campaign.name"),
		})
	}

	details := core.Details{"adGroupsChecked": len(groups)}
	if len(flagged) == 0 {
		return c.okResult(details), nil
	}

	sort.Slice(flagged, func(i, j int) bool {
		if flagged[i].Campaign != flagged[j].Campaign {
			return flagged[i].Campaign < flagged[j].Campaign
		}
		return flagged[i].Name < flagged[j].Name
	})
	details["adGroups"] = flagged

	return c.warningResult(len(flagged), &core.AlertData{
		Title:            fmt.Sprintf("%d ad group(s) without active ads", len(flagged)),
		ShortDescription: fmt.Sprintf("%d enabled ad group(s) have no enabled ad and cannot serve.", len(flagged)),
		Impact:           "Keywords in these ad groups never trigger an ad, so their traffic is lost.",
		SuggestedActions: []string{
			"Create at least one responsive search ad per ad group",
			"Pause ad groups that are no longer needed",
		},
		Severity: core.SeverityHigh,
	}, details), nil
}
