package monitor

import (
	"context"
	"time"
)

// ListOptions contains options for paging through check history.
type ListOptions struct {
	Limit  int
	Cursor string
}

// CheckPage is one page of check history, most recent first.
type CheckPage struct {
	Items      []*CheckResult
	NextCursor string
}

// Repository defines the persistence operations used by the engine and the
// management service.
type Repository interface {
	// Get retrieves a monitor by ID.
	Get(ctx context.Context, id string) (*Monitor, error)

	// GetByHeartbeatToken retrieves a monitor by its heartbeat secret.
	GetByHeartbeatToken(ctx context.Context, token string) (*Monitor, error)

	// List retrieves all monitors of a tenant.
	List(ctx context.Context, tenantID string) ([]*Monitor, error)

	// ListEnabled retrieves all enabled monitors across tenants for polling.
	ListEnabled(ctx context.Context) ([]*Monitor, error)

	// Create creates a new monitor.
	Create(ctx context.Context, m *Monitor) error

	// Update writes the configuration fields of an existing monitor.
	// Status and uptime cache fields are left untouched.
	Update(ctx context.Context, m *Monitor) error

	// SetEnabled pauses or resumes a monitor.
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// RecordHeartbeat stores a liveness timestamp for a heartbeat monitor.
	RecordHeartbeat(ctx context.Context, id string, at time.Time) error

	// UpdateStatus sets the derived current status and last check time.
	UpdateStatus(ctx context.Context, id string, status Status, checkedAt time.Time) error

	// UpdateUptime stores the aggregated uptime cache fields.
	UpdateUptime(ctx context.Context, id string, cache UptimeCache) error

	// AppendCheck appends a check result to the monitor's log.
	AppendCheck(ctx context.Context, check *CheckResult) error

	// RecentChecks returns up to limit checks, most recent first.
	RecentChecks(ctx context.Context, monitorID string, limit int) ([]*CheckResult, error)

	// ChecksBetween returns checks with from <= checkedAt <= to, oldest first.
	ChecksBetween(ctx context.Context, monitorID string, from, to time.Time) ([]*CheckResult, error)

	// ListChecks pages through the check log, most recent first.
	ListChecks(ctx context.Context, monitorID string, opts ListOptions) (*CheckPage, error)

	// CreateAlert persists an alert record.
	CreateAlert(ctx context.Context, alert *Alert) error

	// SetComponentStatus updates the status of a linked component.
	SetComponentStatus(ctx context.Context, componentID string, status ComponentStatus) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
