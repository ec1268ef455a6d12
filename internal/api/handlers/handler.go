package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/queue"
)

type AlertService interface {
	List(ctx context.Context, filter core.AlertFilter) ([]*core.Alert, error)
	Get(ctx context.Context, alertID, tenantID string) (*core.Alert, error)
	Events(ctx context.Context, alertID, tenantID string) ([]*core.AlertEvent, error)
	Acknowledge(ctx context.Context, alertID, tenantID, user string) error
	Comment(ctx context.Context, alertID, tenantID, user, comment string) error
}

// RunSummaries reads the per-tenant view of the last completed run.
type RunSummaries interface {
	GetTenantRunSummary(ctx context.Context, tenantID string, dest interface{}) error
}

type RunRequests interface {
	Push(ctx context.Context, req *queue.RunRequest) error
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	alerts   AlertService
	runs     RunSummaries
	requests RunRequests
	db       Pinger
	checkIDs map[string]bool
	logger   *zap.Logger
	now      func() time.Time
}

type Options struct {
	Alerts   AlertService
	Runs     RunSummaries
	Requests RunRequests
	DB       Pinger
	// CheckIDs lists the registered checks a run request may name.
	CheckIDs []string
	Logger   *zap.Logger
}

func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := make(map[string]bool, len(opts.CheckIDs))
	for _, id := range opts.CheckIDs {
		ids[id] = true
	}
	return &Handler{
		alerts:   opts.Alerts,
		runs:     opts.Runs,
		requests: opts.Requests,
		db:       opts.DB,
		checkIDs: ids,
		logger:   logger,
		now:      time.Now,
	}
}
