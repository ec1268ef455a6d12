package checks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

const (
	thresholdBudgetDepleted   = "budget_depleted_ratio"
	thresholdBudgetNear       = "budget_near_ratio"
	thresholdBudgetCutoffHour = "budget_cutoff_hour"
	thresholdBudgetMinimum    = "budget_min_daily"
)

// BudgetDepletion flags campaigns that have spent (nearly) all of today's
// budget. Running out early in the account's day is worse than at night.
type BudgetDepletion struct {
	base
}

func NewBudgetDepletion(deps Deps) *BudgetDepletion {
	return &BudgetDepletion{base: newBase(
		"budget_depletion",
		"Budget depletion",
		"Campaigns that have spent most of today's budget",
		deps.Now,
	)}
}

type depletedCampaign struct {
	ID       string        `json:"campaignId"`
	Name     string        `json:"campaignName"`
	Budget   float64       `json:"budget"`
	Spend    float64       `json:"spend"`
	Ratio    float64       `json:"ratio"`
	Depleted bool          `json:"depleted"`
	Severity core.Severity `json:"severity"`
}

func (c *BudgetDepletion) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	depletedRatio := tenant.Thresholds.Get(thresholdBudgetDepleted, 0.95)
	nearRatio := tenant.Thresholds.Get(thresholdBudgetNear, 0.90)
	cutoffHour := int(tenant.Thresholds.Get(thresholdBudgetCutoffHour, 18))
	minBudget := tenant.Thresholds.Get(thresholdBudgetMinimum, 5)

	loc := tenant.Location
	if loc == nil {
		loc = c.accountLocation(ctx, client, logger)
	}
	localNow := c.now().In(loc)
	beforeCutoff := localNow.Hour() < cutoffHour

	rows, err := query(ctx, client, `
		SELECT campaign.id, campaign.name, campaign_budget.amount_micros, metrics.cost_micros
		FROM campaign
		WHERE campaign.status = 'ENABLED'
		  AND segments.date DURING TODAY`)
	if err != nil {
		return nil, fmt.Errorf("failed to load today's spend: %w", err)
	}

	var flagged []depletedCampaign
	for _, row := range rows {
		budget := row.Micros("campaignBudget.amountMicros")
		if budget <= 0 || budget < minBudget {
			continue
		}
		spend := row.Micros("metrics.costMicros")
		ratio := spend / budget
		if ratio < nearRatio {
			continue
		}

		depleted := ratio >= depletedRatio
		var severity core.Severity
		switch {
		case depleted && beforeCutoff:
			severity = core.SeverityCritical
		case depleted, beforeCutoff:
			severity = core.SeverityHigh
		default:
			severity = core.SeverityMedium
		}

		flagged = append(flagged, depletedCampaign{
			ID:       row.String("campaign.id"),
			Name:     row.String("campaign.name"),
			Budget:   round2(budget),
			Spend:    round2(spend),
			Ratio:    round2(ratio),
			Depleted: depleted,
			Severity: severity,
		})
	}

	details := core.Details{
		"localTime":    localNow.Format("15:04"),
		"timeZone":     loc.String(),
		"cutoffHour":   cutoffHour,
		"beforeCutoff": beforeCutoff,
	}
	if len(flagged) == 0 {
		return c.okResult(details), nil
	}

	sort.Slice(flagged, func(i, j int) bool { return flagged[i].Ratio > flagged[j].Ratio })
	details["campaigns"] = flagged

	worst := core.SeverityMedium
	depletedCount := 0
	for _, f := range flagged {
		if f.Severity.Rank() > worst.Rank() {
			worst = f.Severity
		}
		if f.Depleted {
			depletedCount++
		}
	}

	title := fmt.Sprintf("%d campaign(s) close to exhausting their daily budget", len(flagged))
	if depletedCount > 0 {
		title = fmt.Sprintf("%d campaign(s) exhausted their daily budget", depletedCount)
	}

	return c.severityResult(len(flagged), &core.AlertData{
		Title:            title,
		ShortDescription: fmt.Sprintf("%d campaign(s) spent at least %.0f%% of today's budget by %s.", len(flagged), nearRatio*100, localNow.Format("15:04")),
		Impact:           "Ads stop serving for the rest of the day once the budget is spent, losing traffic during remaining peak hours.",
		SuggestedActions: []string{
			"Increase the daily budget of campaigns that are converting profitably",
			"Lower bids or narrow targeting to spread spend across the day",
			"Consider ad scheduling to reserve budget for high-value hours",
		},
		Severity: worst,
	}, details), nil
}

// accountLocation returns the account's time zone, UTC when it cannot be
// determined.
func (c *BudgetDepletion) accountLocation(ctx context.Context, client googleads.Querier, logger *zap.Logger) *time.Location {
	loc, err := googleads.AccountLocation(ctx, client)
	if err != nil {
		logger.Warn("Could not determine account time zone, using UTC", zap.Error(err))
		return time.UTC
	}
	return loc
}
