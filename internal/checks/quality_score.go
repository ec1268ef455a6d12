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
	thresholdQualityScoreFloor  = "quality_score_min"
	thresholdQualityImpressions = "quality_score_min_impressions"
	maxListedKeywords           = 25
)

type QualityScore struct {
	base
}

func NewQualityScore(deps Deps) *QualityScore {
	return &QualityScore{base: newBase(
		"quality_score",
		"Low quality score",
		"Keywords with traffic and a quality score below the floor",
		deps.Now,
	)}
}

type lowQualityKeyword struct {
	CriterionID  string `json:"criterionId"`
	Text         string `json:"keyword"`
	MatchType    string `json:"matchType"`
	QualityScore int64  `json:"qualityScore"`
	Impressions  int64  `json:"impressions"`
	Campaign     string `json:"campaignName"`
	AdGroup      string `json:"adGroupName"`
}

func (c *QualityScore) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	floor := int64(tenant.Thresholds.Get(thresholdQualityScoreFloor, 4))
	minImpressions := int64(tenant.Thresholds.Get(thresholdQualityImpressions, 100))

	rows, err := query(ctx, client, `
		SELECT ad_group_criterion.criterion_id, ad_group_criterion.keyword.text,
		       ad_group_criterion.keyword.match_type, ad_group_criterion.quality_info.quality_score,
		       campaign.name, ad_group.name, metrics.impressions
		FROM keyword_view
		WHERE ad_group_criterion.status = 'ENABLED'
		  AND ad_group.status = 'ENABLED'
		  AND campaign.status = 'ENABLED'
		  AND segments.date DURING LAST_30_DAYS`)
	if err != nil {
		return nil, fmt.Errorf("failed to load keyword quality: %w", err)
	}

	var flagged []lowQualityKeyword
	for _, row := range rows {
		// keywords without enough data carry no quality score at all
		if !row.Exists("adGroupCriterion.qualityInfo.qualityScore") {
			continue
		}
		score := row.Int("adGroupCriterion.qualityInfo.qualityScore")
		impressions := row.Int("metrics.impressions")
		if score >= floor || impressions < minImpressions {
			continue
		}
		flagged = append(flagged, lowQualityKeyword{
			CriterionID:  row.String("adGroupCriterion.criterionId"),
			Text:         row.String("adGroupCriterion.keyword.text"),
			MatchType:    row.String("adGroupCriterion.keyword.matchType"),
			QualityScore: score,
			Impressions:  impressions,
			Campaign:     row.String("campaign.name"),
			AdGroup:      row.String("adGroup.name"),
		})
	}

	details := core.Details{"keywordsChecked": len(rows), "floor": floor}
	if len(flagged) == 0 {
		return c.okResult(details), nil
	}

	sort.Slice(flagged, func(i, j int) bool {
		if flagged[i].QualityScore != flagged[j].QualityScore {
			return flagged[i].QualityScore < flagged[j].QualityScore
		}
		return flagged[i].Impressions > flagged[j].Impressions
	})

	severity := core.SeverityMedium
	if len(flagged) >= 10 || flagged[0].QualityScore <= 2 {
		severity = core.SeverityHigh
	}

	listed := flagged
	if len(listed) > maxListedKeywords {
		listed = listed[:maxListedKeywords]
	}
	details["keywords"] = listed

	return c.severityResult(len(flagged), &core.AlertData{
		Title:            fmt.Sprintf("%d keyword(s) with quality score below %d", len(flagged), floor),
		ShortDescription: fmt.Sprintf("%d keyword(s) with at least %d impressions have a quality score under %d/10.", len(flagged), minImpressions, floor),
		Impact:           "Low quality scores raise cost per click and reduce ad rank.",
		SuggestedActions: []string{
			"Tighten ad group themes so ads match the keywords closely",
			"Improve expected CTR with more relevant ad copy",
			"Improve landing page relevance and loading speed",
		},
		Severity: severity,
	}, details), nil
}
