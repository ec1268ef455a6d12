package checks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
	"github.com/leozw/ads-guardian/internal/probe"
)

// Check is one heuristic run against a tenant's ads account. Implementations
// are stateless between runs; everything they need comes from the query
// client and the tenant configuration.
type Check interface {
	ID() string
	Name() string
	Description() string
	Run(ctx context.Context, client googleads.Querier, tenant *core.TenantConfig, logger *zap.Logger) (*core.CheckResult, error)
}

// Deps are the collaborators shared by the default checks.
type Deps struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// NewProber returns a landing page prober for one run; nil disables the
	// landing page check's probing.
	NewProber func() probe.Prober
}

type base struct {
	id          string
	name        string
	description string
	now         func() time.Time
}

func newBase(id, name, description string, now func() time.Time) base {
	if now == nil {
		now = time.Now
	}
	return base{id: id, name: name, description: description, now: now}
}

func (b base) ID() string          { return b.id }
func (b base) Name() string        { return b.name }
func (b base) Description() string { return b.description }

func (b base) okResult(details core.Details) *core.CheckResult {
	if details == nil {
		details = core.Details{}
	}
	return &core.CheckResult{
		CheckID: b.id,
		Status:  core.StatusOK,
		Count:   0,
		Details: details,
	}
}

func (b base) warningResult(count int, alert *core.AlertData, details core.Details) *core.CheckResult {
	return b.result(core.StatusWarning, count, alert, details)
}

func (b base) errorResult(count int, alert *core.AlertData, details core.Details) *core.CheckResult {
	return b.result(core.StatusError, count, alert, details)
}

// severityResult maps critical findings to an error result and everything
// else to a warning.
func (b base) severityResult(count int, alert *core.AlertData, details core.Details) *core.CheckResult {
	if alert.Severity == core.SeverityCritical {
		return b.errorResult(count, alert, details)
	}
	return b.warningResult(count, alert, details)
}

func (b base) result(status core.Status, count int, alert *core.AlertData, details core.Details) *core.CheckResult {
	if details == nil {
		details = core.Details{}
	}
	if alert != nil && alert.Details == nil {
		alert.Details = details
	}
	return &core.CheckResult{
		CheckID:   b.id,
		Status:    status,
		Count:     count,
		Details:   details,
		AlertData: alert,
	}
}
