package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

const thresholdDuplicateImpressions = "duplicate_keywords_min_impressions"

// DuplicateKeywords finds the same keyword and match type targeted from more
// than one ad group, which makes the account bid against itself.
type DuplicateKeywords struct {
	base
}

func NewDuplicateKeywords(deps Deps) *DuplicateKeywords {
	return &DuplicateKeywords{base: newBase(
		"duplicate_keywords",
		"Duplicate keywords",
		"Identical keywords competing across ad groups",
		deps.Now,
	)}
}

type duplicateKeyword struct {
	Text        string   `json:"keyword"`
	MatchType   string   `json:"matchType"`
	AdGroups    []string `json:"adGroups"`
	Impressions int64    `json:"impressions"`
}

type keywordGroup struct {
	text        string
	matchType   string
	adGroups    map[string]string
	impressions int64
}

func (c *DuplicateKeywords) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	minImpressions := int64(tenant.Thresholds.Get(thresholdDuplicateImpressions, 100))

	rows, err := query(ctx, client, `
		SELECT ad_group_criterion.keyword.text, ad_group_criterion.keyword.match_type,
		       ad_group.id, ad_group.name, campaign.name, metrics.impressions
		FROM keyword_view
		WHERE ad_group_criterion.status = 'ENABLED'
		  AND ad_group_criterion.negative = FALSE
		  AND ad_group.status = 'ENABLED'
		  AND campaign.status = 'ENABLED'
		  AND segments.date DURING LAST_30_DAYS`)
	if err != nil {
		return nil, fmt.Errorf("failed to load keywords: %w", err)
	}

	groups := make(map[string]*keywordGroup)
	for _, row := range rows {
		text := strings.ToLower(strings.TrimSpace(row.String("adGroupCriterion.keyword.text")))
		matchType := row.String("adGroupCriterion.keyword.matchType")
		if text == "" {
			continue
		}
		key := text + "|" + matchType
		g, ok := groups[key]
		if !ok {
			g = &keywordGroup{text: text, matchType: matchType, adGroups: make(map[string]string)}
			groups[key] = g
		}
		g.adGroups[row.String("adGroup.id")] = row.String("campaign.name") + " > " + row.String("adGroup.name")
		g.impressions += row.Int("metrics.impressions")
	}

	var flagged []duplicateKeyword
	for _, g := range groups {
		if len(g.adGroups) < 2 || g.impressions < minImpressions {
			continue
		}
		names := make([]string, 0, len(g.adGroups))
		for _, name := range g.adGroups {
			names = append(names, name)
		}
		sort.Strings(names)
		flagged = append(flagged, duplicateKeyword{
			Text:        g.text,
			MatchType:   g.matchType,
			AdGroups:    names,
			Impressions: g.impressions,
		})
	}

	details := core.Details{"keywordsChecked": len(rows)}
	if len(flagged) == 0 {
		return c.okResult(details), nil
	}

	sort.Slice(flagged, func(i, j int) bool { return flagged[i].Impressions > flagged[j].Impressions })
	if len(flagged) > maxListedKeywords {
		details["keywords"] = flagged[:maxListedKeywords]
	} else {
		details["keywords"] = flagged
	}

	return c.warningResult(len(flagged), &core.AlertData{
		Title:            fmt.Sprintf("%d keyword(s) targeted in multiple ad groups", len(flagged)),
		ShortDescription: fmt.Sprintf("%d keyword(s) with the same match type are active in two or more ad groups.", len(flagged)),
		Impact:           "Ad groups compete for the same queries, splitting data and making bids and reporting harder to control.",
		SuggestedActions: []string{
			"Keep each keyword in the single most relevant ad group",
			"Add cross-ad-group negatives to route queries deliberately",
		},
		Severity: core.SeverityMedium,
	}, details), nil
}
