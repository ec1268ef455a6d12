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

const (
	thresholdWastedMinSpend    = "wasted_spend_min_spend"
	thresholdWastedMinClicks   = "wasted_spend_min_clicks"
	thresholdWastedExactSpend  = "wasted_spend_exact_match_spend"
	thresholdWastedHighTotal   = "wasted_spend_high_total"
	maxListedTerms             = 25
	maxSuggestions             = 20
	minSuggestionWordFrequency = 2
)

// stopWords never make useful negative keywords on their own.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "for": true, "of": true,
	"in": true, "on": true, "to": true, "with": true, "de": true, "la": true,
	"le": true, "et": true, "en": true, "du": true, "des": true, "les": true,
}

// WastedSpend lists search terms that spent money over 30 days without a
// single conversion and suggests negative keywords for them.
type WastedSpend struct {
	base
}

func NewWastedSpend(deps Deps) *WastedSpend {
	return &WastedSpend{base: newBase(
		"wasted_spend",
		"Wasted spend",
		"Search terms with significant spend and no conversions",
		deps.Now,
	)}
}

type wastedTerm struct {
	Term      string   `json:"searchTerm"`
	Cost      float64  `json:"cost"`
	Clicks    int64    `json:"clicks"`
	Campaigns []string `json:"campaigns"`
}

type searchTermTotals struct {
	cost        float64
	clicks      int64
	conversions float64
	campaigns   map[string]bool
}

type negativeSuggestion struct {
	Keyword   string   `json:"keyword"`
	MatchType string   `json:"matchType"`
	Reason    string   `json:"reason"`
	Terms     []string `json:"terms,omitempty"`
}

func (c *WastedSpend) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	minSpend := tenant.Thresholds.Get(thresholdWastedMinSpend, 10)
	minClicks := int64(tenant.Thresholds.Get(thresholdWastedMinClicks, 10))
	exactSpend := tenant.Thresholds.Get(thresholdWastedExactSpend, 50)
	highTotal := tenant.Thresholds.Get(thresholdWastedHighTotal, 500)

	rows, err := query(ctx, client, `
		SELECT search_term_view.search_term, campaign.name, metrics.cost_micros,
		       metrics.clicks, metrics.conversions
		FROM search_term_view
		WHERE segments.date DURING LAST_30_DAYS
		  AND metrics.clicks > 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to load search terms: %w", err)
	}

	// a term can appear once per ad group; judge it on its account totals
	totals := make(map[string]*searchTermTotals)
	for _, row := range rows {
		term := strings.ToLower(strings.TrimSpace(row.String("searchTermView.searchTerm")))
		if term == "" {
			continue
		}
		t, ok := totals[term]
		if !ok {
			t = &searchTermTotals{campaigns: make(map[string]bool)}
			totals[term] = t
		}
		t.cost += row.Micros("metrics.costMicros")
		t.clicks += row.Int("metrics.clicks")
		t.conversions += row.Float("metrics.conversions")
		if name := row.String("campaign.name"); name != "" {
			t.campaigns[name] = true
		}
	}

	var flagged []wastedTerm
	var total float64
	for term, t := range totals {
		if t.cost < minSpend || t.clicks < minClicks || t.conversions > 0 {
			continue
		}
		campaigns := make([]string, 0, len(t.campaigns))
		for name := range t.campaigns {
			campaigns = append(campaigns, name)
		}
		sort.Strings(campaigns)
		flagged = append(flagged, wastedTerm{
			Term:      term,
			Cost:      round2(t.cost),
			Clicks:    t.clicks,
			Campaigns: campaigns,
		})
		total += t.cost
	}

	details := core.Details{"termsAnalyzed": len(totals)}
	if len(flagged) == 0 {
		return c.okResult(details), nil
	}

	sort.Slice(flagged, func(i, j int) bool {
		if flagged[i].Cost != flagged[j].Cost {
			return flagged[i].Cost > flagged[j].Cost
		}
		return flagged[i].Term < flagged[j].Term
	})

	listed := flagged
	if len(listed) > maxListedTerms {
		listed = listed[:maxListedTerms]
	}
	suggestions := suggestNegatives(flagged, exactSpend)

	details["terms"] = listed
	details["totalWasted"] = round2(total)
	details["negativeKeywordSuggestions"] = suggestions

	severity := core.SeverityMedium
	if total >= highTotal {
		severity = core.SeverityHigh
	}

	logger.Info("Non-converting search terms found",
		zap.Int("count", len(flagged)),
		zap.Float64("total_wasted", round2(total)),
	)

	return c.severityResult(len(flagged), &core.AlertData{
		Title:            fmt.Sprintf("%s spent on %d non-converting search terms", formatEUR(total), len(flagged)),
		ShortDescription: fmt.Sprintf("%d search term(s) received at least %d clicks and %s each in 30 days without a conversion.", len(flagged), minClicks, formatEUR(minSpend)),
		Impact:           "Budget spent on irrelevant queries is not available for queries that convert.",
		SuggestedActions: []string{
			"Add the suggested negative keywords",
			"Review match types of the keywords triggering these terms",
			"Check whether these terms convert offline or with a delay before excluding them",
		},
		Severity: severity,
	}, details), nil
}

// suggestNegatives proposes phrase negatives for words shared by several
// flagged terms and exact negatives for individually expensive terms.
// flagged must be sorted by cost, descending.
func suggestNegatives(flagged []wastedTerm, exactSpend float64) []negativeSuggestion {
	wordTerms := make(map[string][]string)
	for _, t := range flagged {
		seen := make(map[string]bool)
		for _, word := range strings.Fields(t.Term) {
			if len(word) < 3 || stopWords[word] || seen[word] {
				continue
			}
			seen[word] = true
			wordTerms[word] = append(wordTerms[word], t.Term)
		}
	}

	var byWord []negativeSuggestion
	for word, terms := range wordTerms {
		if len(terms) < minSuggestionWordFrequency {
			continue
		}
		byWord = append(byWord, negativeSuggestion{
			Keyword:   word,
			MatchType: "PHRASE",
			Reason:    fmt.Sprintf("appears in %d non-converting search terms", len(terms)),
			Terms:     terms,
		})
	}
	sort.Slice(byWord, func(i, j int) bool {
		if len(byWord[i].Terms) != len(byWord[j].Terms) {
			return len(byWord[i].Terms) > len(byWord[j].Terms)
		}
		return byWord[i].Keyword < byWord[j].Keyword
	})

	suggestions := byWord
	for _, t := range flagged {
		if t.Cost < exactSpend {
			break
		}
		suggestions = append(suggestions, negativeSuggestion{
			Keyword:   t.Term,
			MatchType: "EXACT",
			Reason:    fmt.Sprintf("spent %s without converting", formatEUR(t.Cost)),
		})
	}

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions
}
