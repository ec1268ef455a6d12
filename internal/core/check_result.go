package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so the worst finding of a check can be picked.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Details is free-form structured context attached to results and alerts.
type Details map[string]interface{}

func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func (d *Details) Scan(value interface{}) error {
	if value == nil {
		*d = make(Details)
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported details type %T", value)
	}
}

// AlertData describes the alert a non-ok check result should raise.
type AlertData struct {
	Title            string   `json:"title"`
	ShortDescription string   `json:"short_description"`
	Impact           string   `json:"impact"`
	SuggestedActions []string `json:"suggested_actions"`
	Severity         Severity `json:"severity"`
	Details          Details  `json:"details,omitempty"`
}

// CheckResult is the outcome of one check run against one tenant.
// An ok result always has a zero count and no alert data.
type CheckResult struct {
	CheckID   string     `json:"check_id"`
	Status    Status     `json:"status"`
	Count     int        `json:"count"`
	Details   Details    `json:"details"`
	AlertData *AlertData `json:"alert_data,omitempty"`
}

// NeedsAlert reports whether the result should be forwarded as an alert.
func (r *CheckResult) NeedsAlert() bool {
	return r.Status != StatusOK && r.AlertData != nil
}

// StringSlice is stored as a JSON array.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported string slice type %T", value)
	}
}
