package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
)

var (
	ErrAlertNotFound       = errors.New("alert not found")
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
	ErrAlertResolved       = errors.New("alert already resolved")
	ErrNothingToAlert      = errors.New("check result carries no alert")
)

// Repository persists alerts and their event history.
//
// InsertAlert must be idempotent per fingerprint among unresolved alerts: when
// one already exists it records another occurrence and returns the stored alert
// with created set to false.
type Repository interface {
	InsertAlert(ctx context.Context, alert *core.Alert) (stored *core.Alert, created bool, err error)
	ResolveAlerts(ctx context.Context, tenantID, platform, checkID, keepFingerprint, resolution string, at time.Time) ([]*core.Alert, error)
	GetAlert(ctx context.Context, id, tenantID string) (*core.Alert, error)
	ListAlerts(ctx context.Context, filter core.AlertFilter) ([]*core.Alert, error)
	AcknowledgeAlert(ctx context.Context, id, tenantID, user string, at time.Time) error
	CreateAlertEvent(ctx context.Context, event *core.AlertEvent) error
	ListAlertEvents(ctx context.Context, alertID string) ([]*core.AlertEvent, error)
}

// Recorder receives alert lifecycle counts. Implemented by metrics.Collector.
type Recorder interface {
	RecordAlert(tenantID, checkID, outcome string)
}

// Alert outcomes reported to the Recorder.
const (
	OutcomeCreated      = "created"
	OutcomeSkipped      = "skipped"
	OutcomeResolved     = "resolved"
	OutcomeSuperseded   = "superseded"
	OutcomeAcknowledged = "acknowledged"
)

// CreateOutcome mirrors what the monitor needs to count.
type CreateOutcome struct {
	Success    bool
	Skipped    bool
	AlertID    string
	Superseded int
}

type Service struct {
	repo     Repository
	notifier Notifier
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, notifier Notifier, recorder Recorder, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateAlertFromCheckResult stores the alert a non-ok check result raises,
// unless an unresolved alert with the same fingerprint already exists.
func (s *Service) CreateAlertFromCheckResult(ctx context.Context, tenantID, tenantName, platform string, result *core.CheckResult) (*CreateOutcome, error) {
	if result == nil || !result.NeedsAlert() {
		return nil, ErrNothingToAlert
	}

	now := s.now().UTC()
	period := Period(now)
	data := result.AlertData

	alert := &core.Alert{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		TenantName:       tenantName,
		Platform:         platform,
		CheckID:          result.CheckID,
		Fingerprint:      Fingerprint(tenantID, platform, result.CheckID, period),
		Period:           period,
		Status:           core.AlertOpen,
		Severity:         data.Severity,
		Title:            data.Title,
		ShortDescription: data.ShortDescription,
		Impact:           data.Impact,
		SuggestedActions: core.StringSlice(data.SuggestedActions),
		Count:            result.Count,
		Details:          data.Details,
		Occurrences:      1,
		FirstSeenAt:      now,
		LastSeenAt:       now,
	}

	stored, created, err := s.repo.InsertAlert(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("failed to store alert: %w", err)
	}

	if !created {
		s.record(tenantID, result.CheckID, OutcomeSkipped)
		s.logger.Debug("Alert already open, skipping",
			zap.String("alert_id", stored.ID),
			zap.String("tenant_id", tenantID),
			zap.String("check_id", result.CheckID),
			zap.Int("occurrences", stored.Occurrences),
		)
		return &CreateOutcome{Success: true, Skipped: true, AlertID: stored.ID}, nil
	}

	superseded, err := s.repo.ResolveAlerts(ctx, tenantID, platform, result.CheckID, stored.Fingerprint, core.ResolutionSuperseded, now)
	if err != nil {
		s.logger.Error("Failed to supersede previous alerts",
			zap.String("tenant_id", tenantID),
			zap.String("check_id", result.CheckID),
			zap.Error(err),
		)
	}
	for _, old := range superseded {
		s.writeEvent(ctx, &core.AlertEvent{
			AlertID:     old.ID,
			EventType:   core.AlertEventResolved,
			EventTime:   now,
			Description: fmt.Sprintf("Superseded by alert %s for period %s", stored.ID, period),
			Metadata:    core.Details{"resolution": core.ResolutionSuperseded, "superseded_by": stored.ID},
		})
		s.record(tenantID, result.CheckID, OutcomeSuperseded)
	}

	s.writeEvent(ctx, &core.AlertEvent{
		AlertID:     stored.ID,
		EventType:   core.AlertEventDetected,
		EventTime:   now,
		Description: data.Title,
		Metadata: core.Details{
			"status":   string(result.Status),
			"severity": string(data.Severity),
			"count":    result.Count,
		},
	})

	if err := s.notifier.Notify(ctx, stored); err != nil {
		s.logger.Warn("Failed to notify about alert",
			zap.String("alert_id", stored.ID),
			zap.Error(err),
		)
	}

	s.record(tenantID, result.CheckID, OutcomeCreated)
	s.logger.Info("Created alert",
		zap.String("alert_id", stored.ID),
		zap.String("tenant_id", tenantID),
		zap.String("check_id", result.CheckID),
		zap.String("severity", string(data.Severity)),
	)

	return &CreateOutcome{Success: true, AlertID: stored.ID, Superseded: len(superseded)}, nil
}

// AutoResolveIfFixed resolves every unresolved alert of a check that now
// reports ok and returns how many were resolved.
func (s *Service) AutoResolveIfFixed(ctx context.Context, tenantID, platform, checkID string) (int, error) {
	now := s.now().UTC()
	resolved, err := s.repo.ResolveAlerts(ctx, tenantID, platform, checkID, "", core.ResolutionAutoResolved, now)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve alerts: %w", err)
	}

	for _, alert := range resolved {
		s.writeEvent(ctx, &core.AlertEvent{
			AlertID:     alert.ID,
			EventType:   core.AlertEventResolved,
			EventTime:   now,
			Description: "Check reports ok again",
			Metadata: core.Details{
				"resolution":  core.ResolutionAutoResolved,
				"occurrences": alert.Occurrences,
				"open_for":    now.Sub(alert.FirstSeenAt).Round(time.Second).String(),
			},
		})
		s.record(tenantID, checkID, OutcomeResolved)
		s.logger.Info("Auto-resolved alert",
			zap.String("alert_id", alert.ID),
			zap.String("tenant_id", tenantID),
			zap.String("check_id", checkID),
		)
	}
	return len(resolved), nil
}

func (s *Service) Acknowledge(ctx context.Context, alertID, tenantID, user string) error {
	alert, err := s.repo.GetAlert(ctx, alertID, tenantID)
	if err != nil {
		return err
	}
	switch {
	case alert.Status == core.AlertResolved:
		return ErrAlertResolved
	case alert.AcknowledgedAt != nil:
		return ErrAlreadyAcknowledged
	}

	now := s.now().UTC()
	if err := s.repo.AcknowledgeAlert(ctx, alertID, tenantID, user, now); err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	if err := s.repo.CreateAlertEvent(ctx, &core.AlertEvent{
		ID:          uuid.New().String(),
		AlertID:     alertID,
		EventType:   core.AlertEventAcknowledged,
		EventTime:   now,
		Description: fmt.Sprintf("Alert acknowledged by %s", user),
		CreatedBy:   &user,
	}); err != nil {
		return err
	}

	s.record(alert.TenantID, alert.CheckID, OutcomeAcknowledged)
	return nil
}

// Comment attaches a free-text note to an alert's history.
func (s *Service) Comment(ctx context.Context, alertID, tenantID, user, comment string) error {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return errors.New("comment is empty")
	}
	if _, err := s.repo.GetAlert(ctx, alertID, tenantID); err != nil {
		return err
	}
	return s.repo.CreateAlertEvent(ctx, &core.AlertEvent{
		ID:          uuid.New().String(),
		AlertID:     alertID,
		EventType:   core.AlertEventComment,
		EventTime:   s.now().UTC(),
		Description: comment,
		CreatedBy:   &user,
	})
}

func (s *Service) Get(ctx context.Context, alertID, tenantID string) (*core.Alert, error) {
	return s.repo.GetAlert(ctx, alertID, tenantID)
}

func (s *Service) List(ctx context.Context, filter core.AlertFilter) ([]*core.Alert, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListAlerts(ctx, filter)
}

// Events returns the history of an alert owned by tenantID, oldest first.
func (s *Service) Events(ctx context.Context, alertID, tenantID string) ([]*core.AlertEvent, error) {
	if _, err := s.repo.GetAlert(ctx, alertID, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListAlertEvents(ctx, alertID)
}

func (s *Service) writeEvent(ctx context.Context, event *core.AlertEvent) {
	event.ID = uuid.New().String()
	if err := s.repo.CreateAlertEvent(ctx, event); err != nil {
		s.logger.Error("Failed to create alert event",
			zap.String("alert_id", event.AlertID),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

func (s *Service) record(tenantID, checkID, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordAlert(tenantID, checkID, outcome)
	}
}
