package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://guardian@localhost/ads?sslmode=disable")
	t.Setenv("GOOGLE_ADS_DEVELOPER_TOKEN", "dev-token")
	t.Setenv("GOOGLE_ADS_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_ADS_CLIENT_SECRET", "client-secret")
	t.Setenv("GOOGLE_ADS_LOGIN_CUSTOMER_ID", "123-456-7890")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://guardian@localhost/ads?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, "dev-token", cfg.GoogleAds.DeveloperToken)
	assert.Equal(t, "client-id", cfg.GoogleAds.ClientID)
	assert.Equal(t, "123-456-7890", cfg.GoogleAds.LoginCustomerID)
	assert.Equal(t, 2, cfg.GoogleAds.RetryAttempts)
	assert.Equal(t, "google_ads", cfg.Monitor.Platform)
	assert.Equal(t, 1, cfg.Monitor.Concurrency)
	assert.True(t, cfg.Probe.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Probe.HTTPTimeout)
	assert.NoError(t, cfg.ValidateMonitor())
}

func TestValidateMonitor_MissingSettings(t *testing.T) {
	cfg := &Config{Monitor: MonitorConfig{Concurrency: 0}}

	err := cfg.ValidateMonitor()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "developer token")
	assert.Contains(t, err.Error(), "oauth client")
	assert.Contains(t, err.Error(), "database url")
	assert.Contains(t, err.Error(), "concurrency")
}
