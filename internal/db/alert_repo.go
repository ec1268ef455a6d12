package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/leozw/ads-guardian/internal/alerts"
	"github.com/leozw/ads-guardian/internal/core"
)

const unresolved = "status <> 'resolved'"

// AlertRepository stores alerts and their events in Postgres.
type AlertRepository struct {
	db *sqlx.DB
}

func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

var _ alerts.Repository = (*AlertRepository)(nil)

type insertedAlert struct {
	core.Alert
	Inserted bool `db:"inserted"`
}

func insertAlertQuery(a *core.Alert) (string, []interface{}, error) {
	return psql.Insert("alerts").
		Columns("id", "tenant_id", "tenant_name", "platform", "check_id", "fingerprint",
			"period", "status", "severity", "title", "short_description", "impact",
			"suggested_actions", "count", "details", "occurrences", "first_seen_at", "last_seen_at").
		Values(a.ID, a.TenantID, a.TenantName, a.Platform, a.CheckID, a.Fingerprint,
			a.Period, a.Status, a.Severity, a.Title, a.ShortDescription, a.Impact,
			a.SuggestedActions, a.Count, a.Details, a.Occurrences, a.FirstSeenAt, a.LastSeenAt).
		Suffix(`ON CONFLICT (fingerprint) WHERE ` + unresolved + ` DO UPDATE SET
			occurrences = alerts.occurrences + 1,
			last_seen_at = EXCLUDED.last_seen_at,
			count = EXCLUDED.count,
			details = EXCLUDED.details
		RETURNING *, (xmax = 0) AS inserted`).
		ToSql()
}

// InsertAlert relies on the partial unique index over unresolved fingerprints;
// xmax is zero only for freshly inserted rows.
func (r *AlertRepository) InsertAlert(ctx context.Context, alert *core.Alert) (*core.Alert, bool, error) {
	query, args, err := insertAlertQuery(alert)
	if err != nil {
		return nil, false, err
	}

	var row insertedAlert
	if err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&row); err != nil {
		return nil, false, err
	}
	return &row.Alert, row.Inserted, nil
}

func resolveAlertsQuery(tenantID, platform, checkID, keepFingerprint, resolution string, at time.Time) (string, []interface{}, error) {
	q := psql.Update("alerts").
		Set("status", core.AlertResolved).
		Set("resolution", resolution).
		Set("resolved_at", at).
		Where(sq.Eq{"tenant_id": tenantID, "platform": platform, "check_id": checkID}).
		Where(unresolved)
	if keepFingerprint != "" {
		q = q.Where(sq.NotEq{"fingerprint": keepFingerprint})
	}
	return q.Suffix("RETURNING *").ToSql()
}

func (r *AlertRepository) ResolveAlerts(ctx context.Context, tenantID, platform, checkID, keepFingerprint, resolution string, at time.Time) ([]*core.Alert, error) {
	query, args, err := resolveAlertsQuery(tenantID, platform, checkID, keepFingerprint, resolution, at)
	if err != nil {
		return nil, err
	}

	resolved := []*core.Alert{}
	if err := r.db.SelectContext(ctx, &resolved, query, args...); err != nil {
		return nil, err
	}
	return resolved, nil
}

func (r *AlertRepository) GetAlert(ctx context.Context, id, tenantID string) (*core.Alert, error) {
	query, args, err := psql.Select("*").
		From("alerts").
		Where(sq.Eq{"id": id, "tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var a core.Alert
	if err := r.db.GetContext(ctx, &a, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, alerts.ErrAlertNotFound
		}
		return nil, err
	}
	return &a, nil
}

func listAlertsQuery(filter core.AlertFilter) (string, []interface{}, error) {
	q := psql.Select("*").
		From("alerts").
		Where(sq.Eq{"tenant_id": filter.TenantID})

	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Severity != "" {
		q = q.Where(sq.Eq{"severity": filter.Severity})
	}
	if filter.CheckID != "" {
		q = q.Where(sq.Eq{"check_id": filter.CheckID})
	}
	if filter.Platform != "" {
		q = q.Where(sq.Eq{"platform": filter.Platform})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q.OrderBy("last_seen_at DESC", "id").ToSql()
}

func (r *AlertRepository) ListAlerts(ctx context.Context, filter core.AlertFilter) ([]*core.Alert, error) {
	query, args, err := listAlertsQuery(filter)
	if err != nil {
		return nil, err
	}

	list := []*core.Alert{}
	if err := r.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *AlertRepository) AcknowledgeAlert(ctx context.Context, id, tenantID, user string, at time.Time) error {
	query, args, err := psql.Update("alerts").
		Set("status", core.AlertAcknowledged).
		Set("acknowledged_at", at).
		Set("acknowledged_by", user).
		Where(sq.Eq{"id": id, "tenant_id": tenantID, "status": core.AlertOpen}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return alerts.ErrAlertNotFound
	}
	return nil
}

func (r *AlertRepository) CreateAlertEvent(ctx context.Context, event *core.AlertEvent) error {
	query := `
		INSERT INTO alert_events (
			id, alert_id, event_type, event_time, description, created_by, metadata
		) VALUES (
			:id, :alert_id, :event_type, :event_time, :description, :created_by, :metadata
		)`

	_, err := r.db.NamedExecContext(ctx, query, event)
	return err
}

func (r *AlertRepository) ListAlertEvents(ctx context.Context, alertID string) ([]*core.AlertEvent, error) {
	events := []*core.AlertEvent{}
	query := `SELECT * FROM alert_events WHERE alert_id = $1 ORDER BY event_time ASC, id`
	err := r.db.SelectContext(ctx, &events, query, alertID)
	return events, err
}

// CountOpenAlerts returns unresolved alerts per tenant for the open alerts gauge.
func (r *AlertRepository) CountOpenAlerts(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		TenantID string `db:"tenant_id"`
		Count    int    `db:"count"`
	}{}
	query := `SELECT tenant_id, COUNT(*) AS count FROM alerts WHERE ` + unresolved + ` GROUP BY tenant_id`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.TenantID] = row.Count
	}
	return counts, nil
}
