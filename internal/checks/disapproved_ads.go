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
	approvalDisapproved = "DISAPPROVED"
	approvalLimited     = "APPROVED_LIMITED"
)

type DisapprovedAds struct {
	base
}

func NewDisapprovedAds(deps Deps) *DisapprovedAds {
	return &DisapprovedAds{base: newBase(
		"disapproved_ads",
		"Disapproved ads",
		"Enabled ads that are disapproved or limited by policy",
		deps.Now,
	)}
}

type policyIssue struct {
	AdID           string   `json:"adId"`
	ApprovalStatus string   `json:"approvalStatus"`
	PolicyTopics   []string `json:"policyTopics"`
	FinalURLs      []string `json:"finalUrls"`
	Campaign       string   `json:"campaignName"`
	AdGroup        string   `json:"adGroupName"`
}

func (c *DisapprovedAds) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	rows, err := query(ctx, client, `
		SELECT ad_group_ad.ad.id, ad_group_ad.ad.final_urls,
		       ad_group_ad.policy_summary.approval_status,
		       ad_group_ad.policy_summary.policy_topic_entries,
		       campaign.name, ad_group.name
		FROM ad_group_ad
		WHERE ad_group_ad.status = 'ENABLED'
		  AND ad_group.status = 'ENABLED'
		  AND campaign.status = 'ENABLED'
		  AND ad_group_ad.policy_summary.approval_status IN ('DISAPPROVED', 'APPROVED_LIMITED')`)
	if err != nil {
		return nil, fmt.Errorf("failed to load ad policy status: %w", err)
	}

	var flagged []policyIssue
	disapproved := 0
	for _, row := range rows {
		status := row.String("adGroupAd.policySummary.approvalStatus")
		if status != approvalDisapproved && status != approvalLimited {
			continue
		}
		if status == approvalDisapproved {
			disapproved++
		}
		flagged = append(flagged, policyIssue{
			AdID:           row.String("adGroupAd.ad.id"),
			ApprovalStatus: status,
			PolicyTopics:   row.Strings("adGroupAd.policySummary.policyTopicEntries.#.topic"),
			FinalURLs:      row.Strings("adGroupAd.ad.finalUrls"),
			Campaign:       row.String("campaign.name"),
			AdGroup:        row.String("adGroup.name"),
		})
	}

	if len(flagged) == 0 {
		return c.okResult(core.Details{}), nil
	}

	sort.SliceStable(flagged, func(i, j int) bool {
		return flagged[i].ApprovalStatus == approvalDisapproved && flagged[j].ApprovalStatus != approvalDisapproved
	})

	details := core.Details{
		"ads":         flagged,
		"disapproved": disapproved,
		"limited":     len(flagged) - disapproved,
	}

	severity := core.SeverityMedium
	if disapproved > 0 {
		severity = core.SeverityHigh
	}

	return c.warningResult(len(flagged), &core.AlertData{
		Title:            fmt.Sprintf("%d ad(s) with policy issues", len(flagged)),
		ShortDescription: fmt.Sprintf("%d ad(s) disapproved and %d limited by policy.", disapproved, len(flagged)-disapproved),
		Impact:           "Disapproved ads do not serve; limited ads reach only part of their audience.",
		SuggestedActions: []string{
			"Review the policy topics listed for each ad",
			"Fix the ad text or landing page and request a review",
			"Check that the landing pages are reachable and match the ad",
		},
		Severity: severity,
	}, details), nil
}
