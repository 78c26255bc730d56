package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL monitor repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const monitorColumns = `
	id, tenant_id, name, type, config,
	interval_seconds, timeout_seconds, alert_after, recovery_after, enabled,
	heartbeat_token, component_id,
	current_status, last_checked_at, last_heartbeat_at,
	uptime_day, uptime_week, uptime_month, avg_response_time,
	created_at, updated_at
`

// Get retrieves a monitor by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE id = $1`
	return r.scanMonitor(r.pool.QueryRow(ctx, query, id))
}

// GetByHeartbeatToken retrieves a monitor by its heartbeat secret.
func (r *PostgresRepository) GetByHeartbeatToken(ctx context.Context, token string) (*Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE heartbeat_token = $1`
	return r.scanMonitor(r.pool.QueryRow(ctx, query, token))
}

// List retrieves all monitors of a tenant.
func (r *PostgresRepository) List(ctx context.Context, tenantID string) ([]*Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE tenant_id = $1 ORDER BY created_at`
	return r.queryMonitors(ctx, query, tenantID)
}

// ListEnabled retrieves all enabled monitors for polling.
func (r *PostgresRepository) ListEnabled(ctx context.Context) ([]*Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE enabled = true ORDER BY created_at`
	return r.queryMonitors(ctx, query)
}

func (r *PostgresRepository) queryMonitors(ctx context.Context, query string, args ...interface{}) ([]*Monitor, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var monitors []*Monitor
	for rows.Next() {
		m, err := r.scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return monitors, nil
}

// scanMonitor scans one monitor row.
func (r *PostgresRepository) scanMonitor(row pgx.Row) (*Monitor, error) {
	var (
		m              Monitor
		typ            string
		status         string
		heartbeatToken *string
	)

	err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.Name,
		&typ,
		&m.Config,
		&m.Interval,
		&m.Timeout,
		&m.AlertAfter,
		&m.RecoveryAfter,
		&m.Enabled,
		&heartbeatToken,
		&m.ComponentID,
		&status,
		&m.LastCheckedAt,
		&m.LastHeartbeatAt,
		&m.UptimeDay,
		&m.UptimeWeek,
		&m.UptimeMonth,
		&m.AvgResponseTime,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMonitorNotFound
		}
		return nil, err
	}

	m.Type = Type(typ)
	m.CurrentStatus = Status(status)
	if heartbeatToken != nil {
		m.HeartbeatToken = *heartbeatToken
	}
	return &m, nil
}

// Create creates a new monitor.
func (r *PostgresRepository) Create(ctx context.Context, m *Monitor) error {
	query := `
		INSERT INTO monitors (` + monitorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	var heartbeatToken *string
	if m.HeartbeatToken != "" {
		heartbeatToken = &m.HeartbeatToken
	}

	_, err := r.pool.Exec(ctx, query,
		m.ID,
		m.TenantID,
		m.Name,
		string(m.Type),
		m.Config,
		m.Interval,
		m.Timeout,
		m.AlertAfter,
		m.RecoveryAfter,
		m.Enabled,
		heartbeatToken,
		m.ComponentID,
		string(m.CurrentStatus),
		m.LastCheckedAt,
		m.LastHeartbeatAt,
		m.UptimeDay,
		m.UptimeWeek,
		m.UptimeMonth,
		m.AvgResponseTime,
		m.CreatedAt,
		m.UpdatedAt,
	)
	return err
}

// Update writes the configuration fields of an existing monitor.
func (r *PostgresRepository) Update(ctx context.Context, m *Monitor) error {
	query := `
		UPDATE monitors SET
			name = $2,
			config = $3,
			interval_seconds = $4,
			timeout_seconds = $5,
			alert_after = $6,
			recovery_after = $7,
			enabled = $8,
			component_id = $9,
			updated_at = $10
		WHERE id = $1
	`

	return r.execOne(ctx, query,
		m.ID,
		m.Name,
		m.Config,
		m.Interval,
		m.Timeout,
		m.AlertAfter,
		m.RecoveryAfter,
		m.Enabled,
		m.ComponentID,
		m.UpdatedAt,
	)
}

// SetEnabled pauses or resumes a monitor.
func (r *PostgresRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE monitors SET enabled = $2, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, enabled)
}

// RecordHeartbeat stores a liveness timestamp.
func (r *PostgresRepository) RecordHeartbeat(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE monitors SET last_heartbeat_at = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

// UpdateStatus sets the derived status fields.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status, checkedAt time.Time) error {
	query := `UPDATE monitors SET current_status = $2, last_checked_at = $3 WHERE id = $1`
	return r.execOne(ctx, query, id, string(status), checkedAt)
}

// UpdateUptime stores the aggregated uptime cache fields.
func (r *PostgresRepository) UpdateUptime(ctx context.Context, id string, cache UptimeCache) error {
	query := `
		UPDATE monitors SET
			uptime_day = $2,
			uptime_week = $3,
			uptime_month = $4,
			avg_response_time = $5
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, cache.Day, cache.Week, cache.Month, cache.AvgResponseTime)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrMonitorNotFound
	}
	return nil
}

const checkColumns = `id, monitor_id, status, response_time, status_code, error, region, checked_at`

// AppendCheck appends a check result. The seq column breaks timestamp ties.
func (r *PostgresRepository) AppendCheck(ctx context.Context, c *CheckResult) error {
	query := `INSERT INTO check_results (` + checkColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.MonitorID,
		string(c.Status),
		c.ResponseTime,
		c.StatusCode,
		c.Error,
		c.Region,
		c.CheckedAt,
	)
	return err
}

// RecentChecks returns up to limit checks, most recent first.
func (r *PostgresRepository) RecentChecks(ctx context.Context, monitorID string, limit int) ([]*CheckResult, error) {
	query := `
		SELECT ` + checkColumns + `
		FROM check_results
		WHERE monitor_id = $1
		ORDER BY checked_at DESC, seq DESC
		LIMIT $2
	`
	return r.queryChecks(ctx, query, monitorID, limit)
}

// ChecksBetween returns checks within [from, to], oldest first.
func (r *PostgresRepository) ChecksBetween(ctx context.Context, monitorID string, from, to time.Time) ([]*CheckResult, error) {
	query := `
		SELECT ` + checkColumns + `
		FROM check_results
		WHERE monitor_id = $1 AND checked_at >= $2 AND checked_at <= $3
		ORDER BY checked_at, seq
	`
	return r.queryChecks(ctx, query, monitorID, from, to)
}

// ListChecks pages through the check log, most recent first.
func (r *PostgresRepository) ListChecks(ctx context.Context, monitorID string, opts ListOptions) (*CheckPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	// Fetch one extra to determine if there are more results
	fetchLimit := limit + 1

	var (
		checks []*CheckResult
		err    error
	)
	if opts.Cursor == "" {
		checks, err = r.RecentChecks(ctx, monitorID, fetchLimit)
	} else {
		query := `
			SELECT ` + checkColumns + `
			FROM check_results c
			WHERE c.monitor_id = $1
			  AND (c.checked_at, c.seq) < (
				SELECT checked_at, seq FROM check_results WHERE id = $2
			  )
			ORDER BY c.checked_at DESC, c.seq DESC
			LIMIT $3
		`
		checks, err = r.queryChecks(ctx, query, monitorID, opts.Cursor, fetchLimit)
	}
	if err != nil {
		return nil, err
	}

	page := &CheckPage{Items: checks}
	if len(checks) > limit {
		page.Items = checks[:limit]
		page.NextCursor = checks[limit-1].ID
	}
	return page, nil
}

func (r *PostgresRepository) queryChecks(ctx context.Context, query string, args ...interface{}) ([]*CheckResult, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []*CheckResult
	for rows.Next() {
		var (
			c      CheckResult
			status string
		)
		if err := rows.Scan(
			&c.ID,
			&c.MonitorID,
			&status,
			&c.ResponseTime,
			&c.StatusCode,
			&c.Error,
			&c.Region,
			&c.CheckedAt,
		); err != nil {
			return nil, err
		}
		c.Status = Status(status)
		checks = append(checks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return checks, nil
}

// CreateAlert persists an alert record.
func (r *PostgresRepository) CreateAlert(ctx context.Context, a *Alert) error {
	query := `INSERT INTO alerts (id, monitor_id, type, message, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, a.ID, a.MonitorID, string(a.Type), a.Message, a.CreatedAt)
	return err
}

// SetComponentStatus updates the status of a component.
func (r *PostgresRepository) SetComponentStatus(ctx context.Context, componentID string, status ComponentStatus) error {
	query := `UPDATE components SET status = $2, updated_at = now() WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, componentID, string(status))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrComponentNotFound
	}
	return nil
}

// Ping verifies the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
