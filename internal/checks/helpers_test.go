package checks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDaysAgo_FollowsAccountDate(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// 03:00 UTC on the 15th is still the evening of the 14th in Los Angeles
	now := time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)

	tenant := testTenant(nil)
	w := daysAgo(tenant.Local(now), 7, 1)
	assert.Equal(t, "2026-03-08", w.startDate())
	assert.Equal(t, "2026-03-14", w.endDate())

	tenant.Location = la
	w = daysAgo(tenant.Local(now), 7, 1)
	assert.Equal(t, "2026-03-07", w.startDate())
	assert.Equal(t, "2026-03-13", w.endDate())
}

func TestSpendWithoutValue_QueriesAccountLocalWindows(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	q := newFakeQuerier(t)
	q.on("FROM customer")

	deps := Deps{Now: func() time.Time { return time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC) }}
	tenant := testTenant(nil)
	tenant.Location = la

	_, err = NewSpendWithoutValue(deps).Run(context.Background(), q, tenant, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, q.queries, 1)
	assert.Contains(t, q.queries[0], "segments.date BETWEEN '2026-02-28' AND '2026-03-13'")
}
