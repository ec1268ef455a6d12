package checks

import (
	"context"
	"fmt"

	"github.com/leozw/ads-guardian/internal/googleads"
)

type periodTotals struct {
	Cost            float64
	Clicks          int64
	Impressions     int64
	Conversions     float64
	ConversionValue float64
	Days            map[string]bool
}

func (p *periodTotals) add(row googleads.Row) {
	p.Cost += row.Micros("metrics.costMicros")
	p.Clicks += row.Int("metrics.clicks")
	p.Impressions += row.Int("metrics.impressions")
	p.Conversions += row.Float("metrics.conversions")
	p.ConversionValue += row.Float("metrics.conversionsValue")
	if p.Days == nil {
		p.Days = make(map[string]bool)
	}
	p.Days[row.String("segments.date")] = true
}

func (p *periodTotals) details(w dateWindow) map[string]interface{} {
	d := w.details()
	d["cost"] = round2(p.Cost)
	d["clicks"] = p.Clicks
	d["impressions"] = p.Impressions
	d["conversions"] = round2(p.Conversions)
	d["conversionValue"] = round2(p.ConversionValue)
	return d
}

// accountDaily loads account level daily metrics spanning both windows and
// splits them into current and previous totals. Rows outside both windows are
// ignored.
func accountDaily(ctx context.Context, client googleads.Querier, current, previous dateWindow) (*periodTotals, *periodTotals, error) {
	span := dateWindow{start: previous.start, end: current.end}
	rows, err := query(ctx, client, fmt.Sprintf(`
		SELECT segments.date, metrics.cost_micros, metrics.clicks, metrics.impressions,
		       metrics.conversions, metrics.conversions_value
		FROM customer
		WHERE %s`, span.gaql()))
	if err != nil {
		return nil, nil, err
	}

	cur, prev := &periodTotals{}, &periodTotals{}
	for _, row := range rows {
		date := row.String("segments.date")
		switch {
		case current.contains(date):
			cur.add(row)
		case previous.contains(date):
			prev.add(row)
		}
	}
	return cur, prev, nil
}
