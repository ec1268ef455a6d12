package checks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/leozw/ads-guardian/internal/core"
)

func searchTermRow(term, campaign string, cost float64, clicks int, conversions float64) obj {
	return obj{
		"searchTermView": obj{"searchTerm": term},
		"campaign":       obj{"name": campaign},
		"metrics": obj{
			"costMicros":  micros(cost),
			"clicks":      clicks,
			"conversions": conversions,
		},
	}
}

func TestWastedSpend_SignificanceFloor(t *testing.T) {
	q := newFakeQuerier(t)
	q.on("FROM search_term_view",
		// €25 but only 3 clicks: never flagged
		searchTermRow("cheap shoes", "Shoes", 25, 3, 0),
		// 12 clicks but only €8
		searchTermRow("shoe laces", "Shoes", 8, 12, 0),
		// converting
		searchTermRow("buy shoes online", "Shoes", 120, 40, 2),
	)

	res, err := NewWastedSpend(testDeps()).Run(context.Background(), q, testTenant(nil), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, core.StatusOK, res.Status)
	assert.NotContains(t, res.Details, "terms")
}

func TestWastedSpend_FlagsAndSuggests(t *testing.T) {
	q := newFakeQuerier(t)
	q.on("FROM search_term_view",
		searchTermRow("cheap shoes", "Shoes", 25, 3, 0),
		searchTermRow("free shoes", "Shoes", 30, 12, 0),
		searchTermRow("free shoes download", "Shoes", 40, 10, 0),
		// same term from a second ad group adds up
		searchTermRow("Free Shoes Download", "Brand", 25, 5, 0),
		searchTermRow("shoes repair near me", "Shoes", 12, 11, 0),
	)

	res, err := NewWastedSpend(testDeps()).Run(context.Background(), q, testTenant(nil), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, core.StatusWarning, res.Status)
	assert.Equal(t, core.SeverityMedium, res.AlertData.Severity)
	assert.Equal(t, 3, res.Count)

	terms := res.Details["terms"].([]wastedTerm)
	require.Len(t, terms, 3)
	assert.Equal(t, "free shoes download", terms[0].Term)
	assert.Equal(t, 65.0, terms[0].Cost)
	assert.Equal(t, int64(15), terms[0].Clicks)
	assert.Equal(t, []string{"Brand", "Shoes"}, terms[0].Campaigns)
	for _, term := range terms {
		assert.NotEqual(t, "cheap shoes", term.Term)
	}
	assert.Equal(t, 107.0, res.Details["totalWasted"])

	suggestions := res.Details["negativeKeywordSuggestions"].([]negativeSuggestion)
	byKeyword := make(map[string]negativeSuggestion)
	for _, s := range suggestions {
		byKeyword[s.Keyword+"/"+s.MatchType] = s
	}
	assert.Contains(t, byKeyword, "shoes/PHRASE")
	assert.Contains(t, byKeyword, "free/PHRASE")
	assert.Contains(t, byKeyword, "free shoes download/EXACT")
	assert.NotContains(t, byKeyword, "free shoes/EXACT")
	assert.NotContains(t, byKeyword, "near/PHRASE")
	assert.Len(t, byKeyword["shoes/PHRASE"].Terms, 3)
}

func TestWastedSpend_HighTotalRaisesSeverity(t *testing.T) {
	q := newFakeQuerier(t)
	q.on("FROM search_term_view",
		searchTermRow("free tool", "A", 300, 60, 0),
		searchTermRow("tool jobs", "A", 250, 40, 0),
	)

	res, err := NewWastedSpend(testDeps()).Run(context.Background(), q, testTenant(nil), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, core.SeverityHigh, res.AlertData.Severity)
	assert.Equal(t, core.StatusWarning, res.Status)
}
