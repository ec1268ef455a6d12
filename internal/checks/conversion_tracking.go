package checks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

const (
	thresholdTrackingMinClicks      = "tracking_min_recent_clicks"
	thresholdTrackingMinConversions = "tracking_min_prior_conversions"
)

// ConversionTracking detects conversion tracking that silently stopped:
// traffic keeps flowing but conversions fall to zero after a healthy baseline.
type ConversionTracking struct {
	base
}

func NewConversionTracking(deps Deps) *ConversionTracking {
	return &ConversionTracking{base: newBase(
		"conversion_tracking",
		"Conversion tracking",
		"Clicks without any recorded conversions after a period with conversions",
		deps.Now,
	)}
}

func (c *ConversionTracking) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	minClicks := int64(tenant.Thresholds.Get(thresholdTrackingMinClicks, 100))
	minPrior := tenant.Thresholds.Get(thresholdTrackingMinConversions, 5)

	now := tenant.Local(c.now())
	recent, prior := daysAgo(now, 3, 1), daysAgo(now, 14, 4)

	cur, prev, err := accountDaily(ctx, client, recent, prior)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversions: %w", err)
	}

	details := core.Details{
		"recentPeriod": cur.details(recent),
		"priorPeriod":  prev.details(prior),
	}

	if cur.Conversions > 0 || cur.Clicks < minClicks || prev.Conversions < minPrior {
		return c.okResult(details), nil
	}

	logger.Warn("Conversion tracking looks broken",
		zap.Int64("recent_clicks", cur.Clicks),
		zap.Float64("prior_conversions", prev.Conversions),
	)

	return c.errorResult(1, &core.AlertData{
		Title:            "Conversion tracking may be broken",
		ShortDescription: fmt.Sprintf("No conversions from %d clicks in the last 3 days, after %.0f conversions in the 11 days before.", cur.Clicks, prev.Conversions),
		Impact:           "Automated bidding optimises against missing conversions and reporting undercounts results.",
		SuggestedActions: []string{
			"Verify the conversion tag fires on the thank-you page",
			"Check for recent website, tag manager or consent banner changes",
			"Review conversion action status in the ads account",
		},
		Severity: core.SeverityCritical,
	}, details), nil
}
