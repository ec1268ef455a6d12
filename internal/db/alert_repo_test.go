package db

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozw/ads-guardian/internal/core"
)

func TestInsertAlertQuery_DedupsOnUnresolvedFingerprint(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	query, args, err := insertAlertQuery(&core.Alert{
		ID:          "a-1",
		TenantID:    "t-1",
		Fingerprint: "fp",
		Status:      core.AlertOpen,
		Severity:    core.SeverityHigh,
		Occurrences: 1,
		FirstSeenAt: now,
		LastSeenAt:  now,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO alerts"))
	assert.Contains(t, query, "$18")
	assert.Contains(t, query, "ON CONFLICT (fingerprint) WHERE status <> 'resolved' DO UPDATE SET")
	assert.Contains(t, query, "occurrences = alerts.occurrences + 1")
	assert.Contains(t, query, "(xmax = 0) AS inserted")
	assert.Len(t, args, 18)
	assert.Equal(t, "a-1", args[0])
}

func TestResolveAlertsQuery(t *testing.T) {
	at := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	query, args, err := resolveAlertsQuery("t-1", "google_ads", "cpc_spike", "", core.ResolutionAutoResolved, at)
	require.NoError(t, err)
	assert.NotContains(t, query, "fingerprint")
	assert.Contains(t, query, "status <> 'resolved'")
	assert.Contains(t, query, "RETURNING *")
	assert.Equal(t, []interface{}{core.AlertResolved, core.ResolutionAutoResolved, at, "cpc_spike", "google_ads", "t-1"}, args)

	query, args, err = resolveAlertsQuery("t-1", "google_ads", "cpc_spike", "keep-me", core.ResolutionSuperseded, at)
	require.NoError(t, err)
	assert.Contains(t, query, "fingerprint <> $7")
	assert.Equal(t, "keep-me", args[6])
}

func TestListAlertsQuery(t *testing.T) {
	tests := []struct {
		name     string
		filter   core.AlertFilter
		contains []string
		args     int
	}{
		{
			name:     "tenant only",
			filter:   core.AlertFilter{TenantID: "t-1"},
			contains: []string{"WHERE tenant_id = $1", "ORDER BY last_seen_at DESC, id"},
			args:     1,
		},
		{
			name:     "all filters",
			filter:   core.AlertFilter{TenantID: "t-1", Status: "open", Severity: "critical", CheckID: "cpc_spike", Platform: "google_ads", Limit: 50, Offset: 100},
			contains: []string{"status = $2", "severity = $3", "check_id = $4", "platform = $5", "LIMIT 50", "OFFSET 100"},
			args:     5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := listAlertsQuery(tt.filter)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, query, s)
			}
			assert.Len(t, args, tt.args)
		})
	}
}
