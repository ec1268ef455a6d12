package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/alerts"
	"github.com/leozw/ads-guardian/internal/checks"
	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

const DefaultPlatform = "google_ads"

// Directory is the client directory the monitor reads tenants from.
type Directory interface {
	ListActiveTenants(ctx context.Context) ([]*core.Tenant, error)
	UpdateLastChecked(ctx context.Context, tenantID string, at time.Time) error
}

// AlertEngine receives the outcome of every check.
type AlertEngine interface {
	CreateAlertFromCheckResult(ctx context.Context, tenantID, tenantName, platform string, result *core.CheckResult) (*alerts.CreateOutcome, error)
	AutoResolveIfFixed(ctx context.Context, tenantID, platform, checkID string) (int, error)
}

// Client is an ads API client bound to one tenant.
type Client interface {
	googleads.Querier
	VerifyConnection(ctx context.Context) error
}

// ClientFactory builds a fresh client per tenant per run so token caches are
// never shared between tenants.
type ClientFactory func(tenant *core.TenantConfig) Client

type Metrics interface {
	RecordRun(platform string, dryRun bool, duration time.Duration, success bool)
	RecordTenant(tenantID string, processed bool)
	RecordCheck(tenantID, checkID string, status core.Status, count int, duration time.Duration)
}

type Options struct {
	Directory   Directory
	Alerts      AlertEngine
	Clients     ClientFactory
	Registry    *checks.Registry
	Credentials core.Credentials
	Metrics     Metrics
	Logger      *zap.Logger
	// Platform tags alerts; defaults to google_ads.
	Platform string
	// Concurrency bounds how many tenants are processed at once. 1 processes
	// tenants sequentially.
	Concurrency int
	Clock       func() time.Time
}

type RunOptions struct {
	// DryRun analyses everything but writes no alerts and no timestamps.
	DryRun bool
	// CheckIDs restricts the run to these checks. Empty runs all of them.
	CheckIDs []string
	// TenantIDs restricts the run to these tenants. Empty runs all of them.
	TenantIDs []string
}

type TenantSummary struct {
	TenantID       string   `json:"tenant_id"`
	TenantName     string   `json:"tenant_name"`
	Processed      bool     `json:"processed"`
	ChecksRun      int      `json:"checks_run"`
	Findings       int      `json:"findings"`
	AlertsCreated  int      `json:"alerts_created"`
	AlertsSkipped  int      `json:"alerts_skipped"`
	AlertsResolved int      `json:"alerts_resolved"`
	DurationMs     int64    `json:"duration_ms"`
	Errors         []string `json:"errors,omitempty"`
}

type RunResult struct {
	RunID            string          `json:"run_id"`
	Platform         string          `json:"platform"`
	DryRun           bool            `json:"dry_run"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
	TenantsProcessed int             `json:"tenants_processed"`
	ChecksRun        int             `json:"checks_run"`
	AlertsCreated    int             `json:"alerts_created"`
	AlertsSkipped    int             `json:"alerts_skipped"`
	AlertsResolved   int             `json:"alerts_resolved"`
	Errors           []string        `json:"errors"`
	Tenants          []TenantSummary `json:"tenants"`
}

// Success reports whether the run finished without recording any error.
func (r *RunResult) Success() bool {
	return len(r.Errors) == 0
}

func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type Monitor struct {
	directory   Directory
	alerts      AlertEngine
	clients     ClientFactory
	registry    *checks.Registry
	credentials core.Credentials
	metrics     Metrics
	logger      *zap.Logger
	platform    string
	concurrency int
	now         func() time.Time
}

func New(opts Options) *Monitor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Platform == "" {
		opts.Platform = DefaultPlatform
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Monitor{
		directory:   opts.Directory,
		alerts:      opts.Alerts,
		clients:     opts.Clients,
		registry:    opts.Registry,
		credentials: opts.Credentials,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		platform:    opts.Platform,
		concurrency: opts.Concurrency,
		now:         opts.Clock,
	}
}

// Run performs one monitoring pass over every monitorable tenant. The
// returned error covers only failures that prevent the run from starting;
// everything else is collected in RunResult.Errors.
func (m *Monitor) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	selected, err := m.registry.Filter(opts.CheckIDs)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:     uuid.New().String(),
		Platform:  m.platform,
		DryRun:    opts.DryRun,
		StartedAt: m.now(),
		Errors:    []string{},
		Tenants:   []TenantSummary{},
	}
	logger := m.logger.With(zap.String("run_id", result.RunID), zap.Bool("dry_run", opts.DryRun))

	tenants, err := m.loadTenants(ctx, opts.TenantIDs, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}

	logger.Info("Starting monitoring run",
		zap.Int("tenants", len(tenants)),
		zap.Int("checks", len(selected)),
		zap.Int("concurrency", m.concurrency),
	)

	summaries := m.process(ctx, tenants, selected, opts.DryRun, logger)

	var processed []string
	for _, s := range summaries {
		result.Tenants = append(result.Tenants, s)
		result.ChecksRun += s.ChecksRun
		result.AlertsCreated += s.AlertsCreated
		result.AlertsSkipped += s.AlertsSkipped
		result.AlertsResolved += s.AlertsResolved
		result.Errors = append(result.Errors, s.Errors...)
		if s.Processed {
			result.TenantsProcessed++
			processed = append(processed, s.TenantID)
		}
	}

	if !opts.DryRun {
		checkedAt := m.now()
		for _, tenantID := range processed {
			if err := m.directory.UpdateLastChecked(ctx, tenantID, checkedAt); err != nil {
				logger.Error("Failed to update last checked timestamp",
					zap.String("tenant_id", tenantID),
					zap.Error(err),
				)
				result.Errors = append(result.Errors, fmt.Sprintf("tenant %s: update last checked: %v", tenantID, err))
			}
		}
	}

	result.FinishedAt = m.now()
	if m.metrics != nil {
		m.metrics.RecordRun(m.platform, opts.DryRun, result.Duration(), result.Success())
	}

	logger.Info("Monitoring run finished",
		zap.Int("tenants_processed", result.TenantsProcessed),
		zap.Int("checks_run", result.ChecksRun),
		zap.Int("alerts_created", result.AlertsCreated),
		zap.Int("alerts_skipped", result.AlertsSkipped),
		zap.Int("alerts_resolved", result.AlertsResolved),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.Duration()),
	)
	return result, nil
}

func (m *Monitor) loadTenants(ctx context.Context, only []string, logger *zap.Logger) ([]*core.Tenant, error) {
	all, err := m.directory.ListActiveTenants(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(only))
	for _, id := range only {
		if id = strings.TrimSpace(id); id != "" {
			wanted[id] = true
		}
	}

	tenants := make([]*core.Tenant, 0, len(all))
	for _, t := range all {
		if len(wanted) > 0 && !wanted[t.ID] {
			continue
		}
		if !t.Monitorable() {
			logger.Debug("Skipping tenant that is not ready for monitoring",
				zap.String("tenant_id", t.ID),
				zap.String("tenant_name", t.Name),
				zap.String("connection_status", t.ConnectionStatus),
				zap.Bool("monitoring_enabled", t.MonitoringEnabled),
			)
			continue
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

// process fans tenants out to the worker pool and returns their summaries in
// directory order.
func (m *Monitor) process(ctx context.Context, tenants []*core.Tenant, selected []checks.Check, dryRun bool, logger *zap.Logger) []TenantSummary {
	summaries := make([]TenantSummary, len(tenants))
	jobs := make(chan tenantJob)

	workers := m.concurrency
	if workers > len(tenants) {
		workers = len(tenants)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		w := &worker{
			id:      i,
			monitor: m,
			checks:  selected,
			dryRun:  dryRun,
			logger:  logger.With(zap.Int("worker_id", i)),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.start(ctx, jobs, summaries)
		}()
	}

	for i, t := range tenants {
		jobs <- tenantJob{index: i, tenant: t}
	}
	close(jobs)
	wg.Wait()

	return summaries
}

func (m *Monitor) runCheck(ctx context.Context, check checks.Check, client Client, tenant *core.TenantConfig, logger *zap.Logger) (res *core.CheckResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Check panicked", zap.Any("panic", r), zap.Stack("stack"))
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	res, err = check.Run(ctx, client, tenant, logger)
	if err == nil && res == nil {
		err = errors.New("check returned no result")
	}
	if res != nil && res.CheckID == "" {
		res.CheckID = check.ID()
	}
	return res, err
}

// TenantRun is the slice of a run one tenant is allowed to see.
type TenantRun struct {
	RunID      string        `json:"run_id"`
	Platform   string        `json:"platform"`
	DryRun     bool          `json:"dry_run"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Tenant     TenantSummary `json:"tenant"`
}

// ForTenant returns the tenant's view of the run, if the run covered it.
func (r *RunResult) ForTenant(tenantID string) (*TenantRun, bool) {
	for _, s := range r.Tenants {
		if s.TenantID == tenantID {
			return &TenantRun{
				RunID:      r.RunID,
				Platform:   r.Platform,
				DryRun:     r.DryRun,
				StartedAt:  r.StartedAt,
				FinishedAt: r.FinishedAt,
				Tenant:     s,
			}, true
		}
	}
	return nil, false
}
