package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
	"github.com/leozw/ads-guardian/internal/probe"
)

const (
	thresholdLandingTLSDays    = "landing_tls_min_days"
	thresholdLandingDomainDays = "landing_domain_min_days"
	thresholdLandingMaxURLs    = "landing_max_urls"
	landingProbeConcurrency    = 5
)

// LandingPages probes the final URLs of ads that served recently. A page a
// visitor cannot reach is critical; certificates or domain registrations
// about to expire are high.
type LandingPages struct {
	base
	newProber func() probe.Prober
}

func NewLandingPages(deps Deps) *LandingPages {
	return &LandingPages{
		base: newBase(
			"landing_pages",
			"Landing pages",
			"Reachability, certificate and domain expiry of ad landing pages",
			deps.Now,
		),
		newProber: deps.NewProber,
	}
}

type landingIssue struct {
	URL      string        `json:"url"`
	Problem  string        `json:"problem"`
	Severity core.Severity `json:"severity"`
	Report   *probe.Report `json:"report"`
}

func (c *LandingPages) Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error) {
	if c.newProber == nil {
		return c.okResult(core.Details{"skipped": "landing page probing disabled"}), nil
	}

	tlsDays := int(tenant.Thresholds.Get(thresholdLandingTLSDays, 14))
	domainDays := int(tenant.Thresholds.Get(thresholdLandingDomainDays, 30))
	maxURLs := int(tenant.Thresholds.Get(thresholdLandingMaxURLs, 20))

	rows, err := query(ctx, client, `
		SELECT ad_group_ad.ad.final_urls, metrics.impressions
		FROM ad_group_ad
		WHERE ad_group_ad.status = 'ENABLED'
		  AND campaign.status = 'ENABLED'
		  AND segments.date DURING LAST_7_DAYS
		  AND metrics.impressions > 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to load final urls: %w", err)
	}

	urls := rankURLs(rows)
	if len(urls) > maxURLs {
		urls = urls[:maxURLs]
	}
	if len(urls) == 0 {
		return c.okResult(core.Details{"urlsChecked": 0}), nil
	}

	prober := c.newProber()
	reports := make([]*probe.Report, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(landingProbeConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			reports[i] = prober.Probe(gctx, u)
			return nil
		})
	}
	_ = g.Wait()

	var issues []landingIssue
	add := func(u, problem string, severity core.Severity, r *probe.Report) {
		issues = append(issues, landingIssue{URL: u, Problem: problem, Severity: severity, Report: r})
	}

	for i, r := range reports {
		switch {
		case r.Broken():
			add(urls[i], "unreachable: "+strings.Join(r.Errors, "; "), core.SeverityCritical, r)
		case r.TLS != nil && r.TLS.DaysToExpiry < tlsDays:
			add(urls[i], fmt.Sprintf("TLS certificate expires in %d day(s)", r.TLS.DaysToExpiry), core.SeverityHigh, r)
		case r.Whois != nil && r.Whois.DaysToExpiry < domainDays:
			add(urls[i], fmt.Sprintf("domain %s expires in %d day(s)", r.Whois.Domain, r.Whois.DaysToExpiry), core.SeverityHigh, r)
		}
	}

	details := core.Details{"urlsChecked": len(urls)}
	if len(issues) == 0 {
		return c.okResult(details), nil
	}

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity.Rank() > issues[j].Severity.Rank()
	})
	details["issues"] = issues

	worst := issues[0]
	logger.Warn("Landing page problems found",
		zap.Int("count", len(issues)),
		zap.String("url", worst.URL),
		zap.String("problem", worst.Problem),
	)

	return c.severityResult(len(issues), &core.AlertData{
		Title:            fmt.Sprintf("%d landing page problem(s)", len(issues)),
		ShortDescription: fmt.Sprintf("%s: %s", worst.URL, worst.Problem),
		Impact:           "Paid clicks that land on a broken or insecure page are wasted and can get ads disapproved.",
		SuggestedActions: []string{
			"Fix or redirect broken landing pages, or update the ads' final URLs",
			"Renew TLS certificates before they expire",
			"Renew domain registrations and enable auto-renewal",
		},
		Severity: worst.Severity,
	}, details), nil
}

// rankURLs returns the distinct final URLs ordered by impressions served.
func rankURLs(rows []googleads.Row) []string {
	impressions := make(map[string]int64)
	for _, row := range rows {
		n := row.Int("metrics.impressions")
		for _, u := range row.Strings("adGroupAd.ad.finalUrls") {
			u = strings.TrimSpace(u)
			if u != "" {
				impressions[u] += n
			}
		}
	}
	urls := make([]string, 0, len(impressions))
	for u := range impressions {
		urls = append(urls, u)
	}
	sort.Slice(urls, func(i, j int) bool {
		if impressions[urls[i]] != impressions[urls[j]] {
			return impressions[urls[i]] > impressions[urls[j]]
		}
		return urls[i] < urls[j]
	})
	return urls
}
