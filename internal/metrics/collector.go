package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leozw/ads-guardian/internal/config"
	"github.com/leozw/ads-guardian/internal/core"
)

type Collector struct {
	config   *config.MimirConfig
	registry *prometheus.Registry
	client   *http.Client

	// Run metrics
	runDuration      *prometheus.HistogramVec
	runsTotal        *prometheus.CounterVec
	lastRunTimestamp *prometheus.GaugeVec

	// Tenant metrics
	tenantsTotal      *prometheus.CounterVec
	tenantLastChecked *prometheus.GaugeVec

	// Check metrics
	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	checkFindings *prometheus.GaugeVec

	// Alert metrics
	alertsTotal *prometheus.CounterVec
	alertsOpen  *prometheus.GaugeVec

	// Ads API metrics
	queriesTotal   *prometheus.CounterVec
	queryRetries   *prometheus.CounterVec
	tokenRefreshes *prometheus.CounterVec
}

// NewCollector registers every metric on reg. A nil reg gets a fresh registry.
func NewCollector(cfg config.MimirConfig, reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	factory := promauto.With(reg)

	return &Collector{
		config:   &cfg,
		registry: reg,
		client:   &http.Client{Timeout: timeout},

		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ads_monitor_run_duration_seconds",
				Help:    "Duration of monitoring runs in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"platform", "dry_run"},
		),

		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ads_monitor_runs_total",
				Help: "Total number of monitoring runs",
			},
			[]string{"platform", "result"},
		),

		lastRunTimestamp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ads_monitor_last_run_timestamp_seconds",
				Help: "Unix time the last monitoring run finished",
			},
			[]string{"platform"},
		),

		tenantsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ads_monitor_tenants_total",
				Help: "Tenants handled by monitoring runs",
			},
			[]string{"tenant_id", "outcome"},
		),

		tenantLastChecked: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ads_monitor_tenant_last_checked_timestamp_seconds",
				Help: "Unix time the tenant was last fully checked",
			},
			[]string{"tenant_id"},
		),

		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ads_checks_total",
				Help: "Total number of checks run",
			},
			[]string{"tenant_id", "check_id", "status"},
		),

		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ads_check_duration_seconds",
				Help:    "Duration of individual checks in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"check_id"},
		),

		checkFindings: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ads_check_findings",
				Help: "Number of findings reported by the last run of a check",
			},
			[]string{"tenant_id", "check_id"},
		),

		alertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ads_alerts_total",
				Help: "Alert lifecycle transitions",
			},
			[]string{"tenant_id", "check_id", "outcome"},
		),

		alertsOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ads_alerts_open",
				Help: "Currently unresolved alerts",
			},
			[]string{"tenant_id"},
		),

		queriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ads_api_queries_total",
				Help: "Ads API queries by result",
			},
			[]string{"tenant_id", "result"},
		),

		queryRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ads_api_query_retries_total",
				Help: "Ads API query attempts beyond the first",
			},
			[]string{"tenant_id"},
		),

		tokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ads_api_token_refreshes_total",
				Help: "OAuth access token refreshes by result",
			},
			[]string{"tenant_id", "result"},
		),
	}
}

// Registry is what the /metrics endpoint serves.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RecordRun(platform string, dryRun bool, duration time.Duration, success bool) {
	c.runDuration.WithLabelValues(platform, strconv.FormatBool(dryRun)).Observe(duration.Seconds())
	c.runsTotal.WithLabelValues(platform, resultLabel(success)).Inc()
	c.lastRunTimestamp.WithLabelValues(platform).SetToCurrentTime()
}

// RecordTenant counts a tenant as processed or failed.
func (c *Collector) RecordTenant(tenantID string, processed bool) {
	outcome := "failed"
	if processed {
		outcome = "processed"
		c.tenantLastChecked.WithLabelValues(tenantID).SetToCurrentTime()
	}
	c.tenantsTotal.WithLabelValues(tenantID, outcome).Inc()
}

// RecordCheck records one check outcome. An empty status means the check failed to run.
func (c *Collector) RecordCheck(tenantID, checkID string, status core.Status, count int, duration time.Duration) {
	label := string(status)
	if label == "" {
		label = "failed"
	}
	c.checksTotal.WithLabelValues(tenantID, checkID, label).Inc()
	c.checkDuration.WithLabelValues(checkID).Observe(duration.Seconds())
	if status != "" {
		c.checkFindings.WithLabelValues(tenantID, checkID).Set(float64(count))
	}
}

func (c *Collector) RecordAlert(tenantID, checkID, outcome string) {
	c.alertsTotal.WithLabelValues(tenantID, checkID, outcome).Inc()
}

// SetOpenAlerts replaces the open alert gauge with fresh per-tenant counts.
func (c *Collector) SetOpenAlerts(counts map[string]int) {
	c.alertsOpen.Reset()
	for tenantID, n := range counts {
		c.alertsOpen.WithLabelValues(tenantID).Set(float64(n))
	}
}

func (c *Collector) ObserveQuery(tenantID string, attempts int, err error) {
	c.queriesTotal.WithLabelValues(tenantID, resultLabel(err == nil)).Inc()
	if attempts > 1 {
		c.queryRetries.WithLabelValues(tenantID).Add(float64(attempts - 1))
	}
}

func (c *Collector) ObserveTokenRefresh(tenantID string, err error) {
	c.tokenRefreshes.WithLabelValues(tenantID, resultLabel(err == nil)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
