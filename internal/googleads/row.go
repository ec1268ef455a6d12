package googleads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Row is one record of a query result. Paths use the REST field names, e.g.
// "campaign.name" or "metrics.costMicros". int64 fields arrive as JSON strings
// and are converted transparently.
type Row struct {
	raw string
}

func NewRow(raw string) Row {
	return Row{raw: raw}
}

func (r Row) Raw() string {
	return r.raw
}

func (r Row) Get(path string) gjson.Result {
	return gjson.Get(r.raw, path)
}

func (r Row) Exists(path string) bool {
	return r.Get(path).Exists()
}

func (r Row) String(path string) string {
	return r.Get(path).String()
}

func (r Row) Int(path string) int64 {
	return r.Get(path).Int()
}

func (r Row) Float(path string) float64 {
	return r.Get(path).Float()
}

// Micros converts a micros amount (1/1,000,000 of the account currency) to
// currency units.
func (r Row) Micros(path string) float64 {
	return float64(r.Get(path).Int()) / 1e6
}

func (r Row) Strings(path string) []string {
	values := r.Get(path).Array()
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.String())
	}
	return out
}

func (r Row) Bool(path string) bool {
	return r.Get(path).Bool()
}

// AccountLocation looks up the account's reporting time zone. Date segments
// and DURING clauses are evaluated in this zone.
func AccountLocation(ctx context.Context, q Querier) (*time.Location, error) {
	res, err := q.Query(ctx, "SELECT customer.time_zone FROM customer LIMIT 1")
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, errors.New("customer query returned no rows")
	}
	tz := res.Rows[0].String("customer.timeZone")
	if tz == "" {
		return nil, errors.New("customer has no time zone")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", tz, err)
	}
	return loc, nil
}
