package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/leozw/ads-guardian/internal/core"
)

var ErrTenantNotFound = errors.New("tenant not found")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var tenantColumns = []string{
	"id", "name", "account_id", "refresh_token", "connection_status",
	"monitoring_enabled", "thresholds", "is_active", "last_checked_at",
	"created_at", "updated_at",
}

// TenantRepository is the client directory.
type TenantRepository struct {
	db *sqlx.DB
}

func NewTenantRepository(db *sqlx.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// ListActiveTenants returns every active directory record. Callers filter
// with core.Tenant.Monitorable.
func (r *TenantRepository) ListActiveTenants(ctx context.Context) ([]*core.Tenant, error) {
	query, args, err := psql.Select(tenantColumns...).
		From("tenants").
		Where(sq.Eq{"is_active": true}).
		OrderBy("name", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	tenants := []*core.Tenant{}
	if err := r.db.SelectContext(ctx, &tenants, query, args...); err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *TenantRepository) GetTenant(ctx context.Context, id string) (*core.Tenant, error) {
	query, args, err := psql.Select(tenantColumns...).
		From("tenants").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var t core.Tenant
	if err := r.db.GetContext(ctx, &t, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return &t, nil
}

// UpsertTenant creates or replaces a directory record. last_checked_at is
// owned by the monitor and left untouched on update.
func (r *TenantRepository) UpsertTenant(ctx context.Context, t *core.Tenant) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	query, args, err := psql.Insert("tenants").
		Columns("id", "name", "account_id", "refresh_token", "connection_status",
			"monitoring_enabled", "thresholds", "is_active", "created_at", "updated_at").
		Values(t.ID, t.Name, t.AccountID, t.RefreshToken, t.ConnectionStatus,
			t.MonitoringEnabled, t.Thresholds, t.IsActive, t.CreatedAt, t.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			account_id = EXCLUDED.account_id,
			refresh_token = EXCLUDED.refresh_token,
			connection_status = EXCLUDED.connection_status,
			monitoring_enabled = EXCLUDED.monitoring_enabled,
			thresholds = EXCLUDED.thresholds,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *TenantRepository) UpdateLastChecked(ctx context.Context, tenantID string, at time.Time) error {
	query, args, err := psql.Update("tenants").
		Set("last_checked_at", at).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": tenantID}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTenantNotFound
	}
	return nil
}
