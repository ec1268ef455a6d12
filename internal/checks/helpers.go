package checks

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/leozw/ads-guardian/internal/googleads"
)

const dateLayout = "2006-01-02"

// dateWindow is an inclusive range of whole days.
type dateWindow struct {
	start time.Time
	end   time.Time
}

// daysAgo returns the window from fromDays to toDays before now, counted in
// whole days; daysAgo(now, 7, 1) is the last seven complete days.
func daysAgo(now time.Time, fromDays, toDays int) dateWindow {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return dateWindow{
		start: day.AddDate(0, 0, -fromDays),
		end:   day.AddDate(0, 0, -toDays),
	}
}

func (w dateWindow) startDate() string { return w.start.Format(dateLayout) }
func (w dateWindow) endDate() string   { return w.end.Format(dateLayout) }

func (w dateWindow) contains(date string) bool {
	return date >= w.startDate() && date <= w.endDate()
}

// gaql renders the window as a segments.date condition.
func (w dateWindow) gaql() string {
	return fmt.Sprintf("segments.date BETWEEN '%s' AND '%s'", w.startDate(), w.endDate())
}

func (w dateWindow) details() map[string]interface{} {
	return map[string]interface{}{
		"startDate": w.startDate(),
		"endDate":   w.endDate(),
	}
}

// growth is the percent change from prev to cur. A zero baseline yields 0
// when cur is also zero and 100 otherwise.
func growth(cur, prev float64) float64 {
	if prev == 0 {
		if cur == 0 {
			return 0
		}
		return 100
	}
	return (cur - prev) / prev * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func query(ctx context.Context, client googleads.Querier, gaql string) ([]googleads.Row, error) {
	res, err := client.Query(ctx, gaql)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

func formatEUR(v float64) string {
	return fmt.Sprintf("€%.2f", v)
}
