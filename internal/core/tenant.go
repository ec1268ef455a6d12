package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Connection states reported by the client directory.
const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"
	ConnectionError        = "error"
)

// Tenant is the client directory record for one monitored ads account.
type Tenant struct {
	ID                string     `json:"id" db:"id"`
	Name              string     `json:"name" db:"name"`
	AccountID         string     `json:"account_id" db:"account_id"`
	RefreshToken      string     `json:"-" db:"refresh_token"`
	ConnectionStatus  string     `json:"connection_status" db:"connection_status"`
	MonitoringEnabled bool       `json:"monitoring_enabled" db:"monitoring_enabled"`
	Thresholds        Thresholds `json:"thresholds" db:"thresholds"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	LastCheckedAt     *time.Time `json:"last_checked_at" db:"last_checked_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Monitorable reports whether the tenant is connected and configured well
// enough for the monitor to query its account.
func (t *Tenant) Monitorable() bool {
	return t.ConnectionStatus == ConnectionConnected &&
		strings.TrimSpace(t.AccountID) != "" &&
		strings.TrimSpace(t.RefreshToken) != "" &&
		t.MonitoringEnabled
}

// Credentials authorise read access to one ads account. The developer token and
// OAuth client are process wide, the refresh token belongs to the tenant.
type Credentials struct {
	DeveloperToken    string
	OAuthClientID     string
	OAuthClientSecret string
	RefreshToken      string
	LoginCustomerID   string
}

// TenantConfig is what a check sees of the tenant it runs for.
type TenantConfig struct {
	TenantID    string
	TenantName  string
	AccountID   string
	Credentials Credentials
	Thresholds  Thresholds

	// Location is the account's reporting time zone; nil means UTC.
	Location *time.Location
}

// Local converts t to the account's time zone.
func (c *TenantConfig) Local(t time.Time) time.Time {
	if c == nil || c.Location == nil {
		return t.UTC()
	}
	return t.In(c.Location)
}

// NewTenantConfig combines a directory record with the process wide credentials.
func NewTenantConfig(t *Tenant, shared Credentials) *TenantConfig {
	creds := shared
	creds.RefreshToken = t.RefreshToken
	return &TenantConfig{
		TenantID:    t.ID,
		TenantName:  t.Name,
		AccountID:   NormalizeAccountID(t.AccountID),
		Credentials: creds,
		Thresholds:  t.Thresholds,
	}
}

// NormalizeAccountID strips the dashes users tend to copy from the ads UI.
func NormalizeAccountID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

// Thresholds holds per-tenant overrides keyed by threshold name.
type Thresholds map[string]float64

// Get returns the override for key, or def when none is configured.
func (t Thresholds) Get(key string, def float64) float64 {
	if t == nil {
		return def
	}
	if v, ok := t[key]; ok {
		return v
	}
	return def
}

func (t Thresholds) Value() (driver.Value, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(t)
}

func (t *Thresholds) Scan(value interface{}) error {
	if value == nil {
		*t = Thresholds{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("unsupported thresholds type %T", value)
	}
}
