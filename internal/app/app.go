// Package app wires the shared dependencies of the ads-guardian binaries.
package app

import (
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/alerts"
	"github.com/leozw/ads-guardian/internal/checks"
	"github.com/leozw/ads-guardian/internal/config"
	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/db"
	"github.com/leozw/ads-guardian/internal/googleads"
	"github.com/leozw/ads-guardian/internal/metrics"
	"github.com/leozw/ads-guardian/internal/monitor"
	"github.com/leozw/ads-guardian/internal/probe"
)

type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *sqlx.DB
	Tenants *db.TenantRepository
	Alerts  *db.AlertRepository
	Metrics *metrics.Collector
}

// New connects to Postgres and builds the repositories and metrics collector.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	database, err := db.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		DB:      database,
		Tenants: db.NewTenantRepository(database),
		Alerts:  db.NewAlertRepository(database),
		Metrics: metrics.NewCollector(cfg.Mimir, prometheus.NewRegistry()),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// AlertService posts new alerts to the configured webhook, if any.
func (a *App) AlertService() *alerts.Service {
	var notifier alerts.Notifier
	if url := a.Config.Notifications.WebhookURL; url != "" {
		notifier = alerts.NewWebhookNotifier(url, a.Config.Notifications.Timeout, a.Logger)
	}
	return alerts.NewService(a.Alerts, notifier, a.Metrics, a.Logger)
}

func (a *App) Checks() *checks.Registry {
	deps := checks.Deps{}
	if a.Config.Probe.Enabled {
		inspector := probe.NewInspector(probe.Options{
			HTTPTimeout: a.Config.Probe.HTTPTimeout,
			DNSServer:   a.Config.Probe.DNSServer,
			UserAgent:   a.Config.Probe.UserAgent,
			SkipWhois:   a.Config.Probe.SkipWhois,
			Logger:      a.Logger.Named("probe"),
		})
		deps.NewProber = inspector.Session
	}
	return checks.Default(deps)
}

// ClientFactory returns one Google Ads client per tenant; clients share the
// HTTP transport but never a token cache.
func (a *App) ClientFactory() monitor.ClientFactory {
	cfg := a.Config.GoogleAds
	httpClient := &http.Client{Timeout: cfg.Timeout}
	logger := a.Logger.Named("googleads")

	return func(tenant *core.TenantConfig) monitor.Client {
		return googleads.NewClient(tenant, googleads.Options{
			BaseURL:           cfg.BaseURL,
			APIVersion:        cfg.APIVersion,
			TokenURL:          cfg.TokenURL,
			RetryAttempts:     cfg.RetryAttempts,
			RetryBaseDelay:    cfg.RetryBaseDelay,
			RequestsPerSecond: cfg.RequestsPerSecond,
			HTTPClient:        httpClient,
			Observer:          a.Metrics,
			Logger:            logger,
		})
	}
}

func (a *App) Credentials() core.Credentials {
	return core.Credentials{
		DeveloperToken:    a.Config.GoogleAds.DeveloperToken,
		OAuthClientID:     a.Config.GoogleAds.ClientID,
		OAuthClientSecret: a.Config.GoogleAds.ClientSecret,
		LoginCustomerID:   a.Config.GoogleAds.LoginCustomerID,
	}
}

func (a *App) Monitor(registry *checks.Registry) *monitor.Monitor {
	return monitor.New(monitor.Options{
		Directory:   a.Tenants,
		Alerts:      a.AlertService(),
		Clients:     a.ClientFactory(),
		Registry:    registry,
		Credentials: a.Credentials(),
		Metrics:     a.Metrics,
		Logger:      a.Logger,
		Platform:    a.Config.Monitor.Platform,
		Concurrency: a.Config.Monitor.Concurrency,
	})
}
