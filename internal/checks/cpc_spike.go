package checks

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

const (
	thresholdCPCHigh      = "cpc_spike_high_pct"
	thresholdCPCCritical  = "cpc_spike_critical_pct"
	thresholdCPCMinDays   = "cpc_spike_min_days"
	thresholdCPCMinClicks = "cpc_spike_min_recent_clicks"

	cpcRecentDays = 3
	cpcPriorDays  = 7
)

// CPCSpike compares each campaign's average cost per click over the last
// three days with the seven days before.
type CPCSpike struct {
	base
}

func NewCPCSpike(deps Deps) *CPCSpike {
	return &CPCSpike{base: newBase(
		"cpc_spike",
		"CPC spike",
		"Sudden increase in average cost per click",
		deps.Now,
	)}
}

type cpcSpike struct {
	ID          string        `json:"campaignId"`
	Name        string        `json:"campaignName"`
	RecentCPC   float64       `json:"recentCpc"`
	PriorCPC    float64       `json:"priorCpc"`
	IncreasePct float64       `json:"increasePct"`
	Clicks      int64         `json:"recentClicks"`
	Severity    core.Severity `json:"severity"`
}

type cpcSeries struct {
	name        string
	days        map[string]bool
	recentCost  float64
	recentClick int64
	priorCost   float64
	priorClick  int64
}

func (c *CPCSpike) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	highPct := tenant.Thresholds.Get(thresholdCPCHigh, 30)
	critPct := tenant.Thresholds.Get(thresholdCPCCritical, 50)
	minDays := int(tenant.Thresholds.Get(thresholdCPCMinDays, 10))
	minClicks := int64(tenant.Thresholds.Get(thresholdCPCMinClicks, 10))

	now := tenant.Local(c.now())
	recent := daysAgo(now, cpcRecentDays, 1)
	prior := daysAgo(now, cpcRecentDays+cpcPriorDays, cpcRecentDays+1)
	span := dateWindow{start: prior.start, end: recent.end}

	rows, err := query(ctx, client, fmt.Sprintf(`
		SELECT campaign.id, campaign.name, segments.date, metrics.clicks, metrics.cost_micros
		FROM campaign
		WHERE campaign.status = 'ENABLED'
		  AND %s`, span.gaql()))
	if err != nil {
		return nil, fmt.Errorf("failed to load daily CPC: %w", err)
	}

	series := make(map[string]*cpcSeries)
	for _, row := range rows {
		id := row.String("campaign.id")
		s, ok := series[id]
		if !ok {
			s = &cpcSeries{name: row.String("campaign.name"), days: make(map[string]bool)}
			series[id] = s
		}
		date := row.String("segments.date")
		cost := row.Micros("metrics.costMicros")
		clicks := row.Int("metrics.clicks")
		switch {
		case recent.contains(date):
			s.recentCost += cost
			s.recentClick += clicks
		case prior.contains(date):
			s.priorCost += cost
			s.priorClick += clicks
		default:
			continue
		}
		s.days[date] = true
	}

	var flagged []cpcSpike
	for id, s := range series {
		if len(s.days) < minDays || s.recentClick < minClicks || s.priorClick == 0 {
			continue
		}
		recentCPC := s.recentCost / float64(s.recentClick)
		priorCPC := s.priorCost / float64(s.priorClick)
		if priorCPC == 0 {
			continue
		}
		pct := round2((recentCPC - priorCPC) * 100 / priorCPC)
		if pct < highPct {
			continue
		}
		severity := core.SeverityHigh
		if pct >= critPct {
			severity = core.SeverityCritical
		}
		flagged = append(flagged, cpcSpike{
			ID:          id,
			Name:        s.name,
			RecentCPC:   round2(recentCPC),
			PriorCPC:    round2(priorCPC),
			IncreasePct: pct,
			Clicks:      s.recentClick,
			Severity:    severity,
		})
	}

	details := core.Details{
		"recentPeriod":     recent.details(),
		"priorPeriod":      prior.details(),
		"campaignsChecked": len(series),
	}
	if len(flagged) == 0 {
		return c.okResult(details), nil
	}

	sort.Slice(flagged, func(i, j int) bool { return flagged[i].IncreasePct > flagged[j].IncreasePct })
	details["campaigns"] = flagged

	worst := flagged[0]
	logger.Info("CPC spike detected",
		zap.Int("count", len(flagged)),
		zap.String("campaign", worst.Name),
		zap.Float64("increase_pct", worst.IncreasePct),
	)

	return c.severityResult(len(flagged), &core.AlertData{
		Title:            fmt.Sprintf("CPC up %.0f%% on %s", worst.IncreasePct, worst.Name),
		ShortDescription: fmt.Sprintf("%d campaign(s) pay significantly more per click; worst: %s → %s.", len(flagged), formatEUR(worst.PriorCPC), formatEUR(worst.RecentCPC)),
		Impact:           "Higher click costs buy less traffic for the same budget and raise cost per acquisition.",
		SuggestedActions: []string{
			"Check auction insights for new competitors",
			"Review recent bid strategy or target changes",
			"Check quality score changes on high-spend keywords",
		},
		Severity: worst.Severity,
	}, details), nil
}
