package core

import (
	"time"
)

type AlertStatus string

const (
	AlertOpen         AlertStatus = "open"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Resolution reasons recorded on resolved alerts.
const (
	ResolutionAutoResolved = "auto_resolved"
	ResolutionSuperseded   = "superseded"
)

// Alert is a stored, deduplicated finding for one (tenant, platform, check).
type Alert struct {
	ID               string      `json:"id" db:"id"`
	TenantID         string      `json:"tenant_id" db:"tenant_id"`
	TenantName       string      `json:"tenant_name" db:"tenant_name"`
	Platform         string      `json:"platform" db:"platform"`
	CheckID          string      `json:"check_id" db:"check_id"`
	Fingerprint      string      `json:"fingerprint" db:"fingerprint"`
	Period           string      `json:"period" db:"period"`
	Status           AlertStatus `json:"status" db:"status"`
	Severity         Severity    `json:"severity" db:"severity"`
	Title            string      `json:"title" db:"title"`
	ShortDescription string      `json:"short_description" db:"short_description"`
	Impact           string      `json:"impact" db:"impact"`
	SuggestedActions StringSlice `json:"suggested_actions" db:"suggested_actions"`
	Count            int         `json:"count" db:"count"`
	Details          Details     `json:"details" db:"details"`
	Occurrences      int         `json:"occurrences" db:"occurrences"`
	FirstSeenAt      time.Time   `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt       time.Time   `json:"last_seen_at" db:"last_seen_at"`
	AcknowledgedAt   *time.Time  `json:"acknowledged_at" db:"acknowledged_at"`
	AcknowledgedBy   *string     `json:"acknowledged_by" db:"acknowledged_by"`
	ResolvedAt       *time.Time  `json:"resolved_at" db:"resolved_at"`
	Resolution       *string     `json:"resolution" db:"resolution"`
}

// Alert event types
const (
	AlertEventDetected     = "detected"
	AlertEventAcknowledged = "acknowledged"
	AlertEventResolved     = "resolved"
	AlertEventComment      = "comment"
)

type AlertEvent struct {
	ID          string    `json:"id" db:"id"`
	AlertID     string    `json:"alert_id" db:"alert_id"`
	EventType   string    `json:"event_type" db:"event_type"`
	EventTime   time.Time `json:"event_time" db:"event_time"`
	Description string    `json:"description" db:"description"`
	CreatedBy   *string   `json:"created_by" db:"created_by"`
	Metadata    Details   `json:"metadata" db:"metadata"`
}

type AlertFilter struct {
	TenantID string
	Status   string // "open", "acknowledged", "resolved" or empty
	Severity string
	CheckID  string
	Platform string
	Limit    int
	Offset   int
}
