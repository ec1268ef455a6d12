package checks

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

// fakeQuerier answers queries by substring; the longest matching key wins so
// "FROM ad_group_ad" and "FROM ad_group" can coexist.
type fakeQuerier struct {
	t         *testing.T
	responses map[string][]string
	errs      map[string]error
	queries   []string
}

func newFakeQuerier(t *testing.T) *fakeQuerier {
	return &fakeQuerier{t: t, responses: map[string][]string{}, errs: map[string]error{}}
}

// on registers rows for queries containing key. Rows are objects marshalled
// to the REST JSON shape.
func (f *fakeQuerier) on(key string, rows ...map[string]interface{}) *fakeQuerier {
	for _, r := range rows {
		raw, err := json.Marshal(r)
		require.NoError(f.t, err)
		f.responses[key] = append(f.responses[key], string(raw))
	}
	if _, ok := f.responses[key]; !ok {
		f.responses[key] = []string{}
	}
	return f
}

func (f *fakeQuerier) fail(key string, err error) *fakeQuerier {
	f.errs[key] = err
	return f
}

func (f *fakeQuerier) Query(ctx context.Context, q string) (*googleads.QueryResult, error) {
	f.queries = append(f.queries, q)

	keys := make([]string, 0, len(f.responses)+len(f.errs))
	for k := range f.responses {
		keys = append(keys, k)
	}
	for k := range f.errs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	for _, k := range keys {
		if !strings.Contains(q, k) {
			continue
		}
		if err, ok := f.errs[k]; ok {
			return nil, err
		}
		rows := make([]googleads.Row, 0, len(f.responses[k]))
		for _, raw := range f.responses[k] {
			rows = append(rows, googleads.NewRow(raw))
		}
		return &googleads.QueryResult{Rows: rows}, nil
	}
	return &googleads.QueryResult{Rows: []googleads.Row{}}, nil
}

type obj = map[string]interface{}

// micros renders a currency amount the way the REST API encodes int64 micros.
func micros(v float64) string {
	return strconv.FormatInt(int64(math.Round(v*1e6)), 10)
}

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func testDeps() Deps {
	return Deps{Now: func() time.Time { return testNow }}
}

func testTenant(thresholds core.Thresholds) *core.TenantConfig {
	return &core.TenantConfig{
		TenantID:   "tenant-1",
		TenantName: "Acme",
		AccountID:  "1234567890",
		Thresholds: thresholds,
	}
}

// day returns the date n days before testNow.
func day(n int) string {
	return testNow.AddDate(0, 0, -n).Format(dateLayout)
}
