package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/golang/snappy"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
)

const tenantLabel = "tenant_id"

// Push remote-writes every tenant-labelled series to Mimir, one request per
// tenant batch with the tenant in the configured header. It is a no-op when no
// Mimir URL is configured.
func (c *Collector) Push(ctx context.Context) error {
	if c.config.URL == "" {
		return nil
	}

	mfs, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	byTenant := groupByTenant(toTimeSeries(mfs, time.Now()))
	tenants := make([]string, 0, len(byTenant))
	for tenantID := range byTenant {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)

	batchSize := c.config.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	for _, tenantID := range tenants {
		series := byTenant[tenantID]
		for i := 0; i < len(series); i += batchSize {
			end := i + batchSize
			if end > len(series) {
				end = len(series)
			}
			if err := c.send(ctx, tenantID, series[i:end]); err != nil {
				return fmt.Errorf("failed to push metrics for tenant %s: %w", tenantID, err)
			}
		}
	}
	return nil
}

func (c *Collector) send(ctx context.Context, tenantID string, series []prompb.TimeSeries) error {
	req := &prompb.WriteRequest{Timeseries: series}
	data, err := req.Marshal()
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+"/api/v1/push", bytes.NewReader(snappy.Encode(nil, data)))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	httpReq.Header.Set(c.config.TenantHeader, tenantID)
	if c.config.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("remote write failed: %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return nil
}

// toTimeSeries flattens counters, gauges and histograms that carry a tenant
// label. Histograms expand into _bucket, _sum and _count series.
func toTimeSeries(mfs []*dto.MetricFamily, at time.Time) []prompb.TimeSeries {
	ts := at.UnixNano() / int64(time.Millisecond)
	var out []prompb.TimeSeries

	sample := func(name string, labels []prompb.Label, value float64, extra ...prompb.Label) {
		all := make([]prompb.Label, 0, len(labels)+len(extra)+1)
		all = append(all, prompb.Label{Name: "__name__", Value: name})
		all = append(all, labels...)
		all = append(all, extra...)
		sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
		out = append(out, prompb.TimeSeries{
			Labels:  all,
			Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
		})
	}

	for _, mf := range mfs {
		name := mf.GetName()
		for _, m := range mf.Metric {
			var hasTenant bool
			labels := make([]prompb.Label, 0, len(m.Label))
			for _, l := range m.Label {
				if l.GetName() == tenantLabel && l.GetValue() != "" {
					hasTenant = true
				}
				labels = append(labels, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
			}
			if !hasTenant {
				continue
			}

			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				sample(name, labels, m.Counter.GetValue())
			case dto.MetricType_GAUGE:
				sample(name, labels, m.Gauge.GetValue())
			case dto.MetricType_HISTOGRAM:
				h := m.Histogram
				for _, b := range h.Bucket {
					sample(name+"_bucket", labels, float64(b.GetCumulativeCount()),
						prompb.Label{Name: "le", Value: strconv.FormatFloat(b.GetUpperBound(), 'g', -1, 64)})
				}
				sample(name+"_bucket", labels, float64(h.GetSampleCount()), prompb.Label{Name: "le", Value: "+Inf"})
				sample(name+"_sum", labels, h.GetSampleSum())
				sample(name+"_count", labels, float64(h.GetSampleCount()))
			}
		}
	}
	return out
}

func groupByTenant(series []prompb.TimeSeries) map[string][]prompb.TimeSeries {
	byTenant := make(map[string][]prompb.TimeSeries)
	for _, s := range series {
		for _, l := range s.Labels {
			if l.Name == tenantLabel {
				byTenant[l.Value] = append(byTenant[l.Value], s)
				break
			}
		}
	}
	return byTenant
}
