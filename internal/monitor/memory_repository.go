package monitor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and single-process demos.
type InMemoryRepository struct {
	mu         sync.RWMutex
	monitors   map[string]*Monitor
	checks     map[string][]*CheckResult
	alerts     []*Alert
	components map[string]ComponentStatus
}

// NewInMemoryRepository creates a new in-memory monitor repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		monitors:   make(map[string]*Monitor),
		checks:     make(map[string][]*CheckResult),
		components: make(map[string]ComponentStatus),
	}
}

// Get retrieves a monitor by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Monitor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.monitors[id]
	if !ok {
		return nil, ErrMonitorNotFound
	}
	cpy := *m
	return &cpy, nil
}

// GetByHeartbeatToken retrieves a monitor by its heartbeat secret.
func (r *InMemoryRepository) GetByHeartbeatToken(_ context.Context, token string) (*Monitor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if token == "" {
		return nil, ErrMonitorNotFound
	}
	for _, m := range r.monitors {
		if m.HeartbeatToken == token {
			cpy := *m
			return &cpy, nil
		}
	}
	return nil, ErrMonitorNotFound
}

// List retrieves all monitors of a tenant ordered by creation time.
func (r *InMemoryRepository) List(_ context.Context, tenantID string) ([]*Monitor, error) {
	return r.filter(func(m *Monitor) bool { return m.TenantID == tenantID }), nil
}

// ListEnabled retrieves all enabled monitors.
func (r *InMemoryRepository) ListEnabled(_ context.Context) ([]*Monitor, error) {
	return r.filter(func(m *Monitor) bool { return m.Enabled }), nil
}

func (r *InMemoryRepository) filter(keep func(*Monitor) bool) []*Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Monitor
	for _, m := range r.monitors {
		if keep(m) {
			cpy := *m
			out = append(out, &cpy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Create creates a new monitor.
func (r *InMemoryRepository) Create(_ context.Context, m *Monitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *m
	r.monitors[m.ID] = &cpy
	return nil
}

// Update writes the configuration fields of an existing monitor.
func (r *InMemoryRepository) Update(_ context.Context, m *Monitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.monitors[m.ID]
	if !ok {
		return ErrMonitorNotFound
	}
	existing.Name = m.Name
	existing.Config = m.Config
	existing.Interval = m.Interval
	existing.Timeout = m.Timeout
	existing.AlertAfter = m.AlertAfter
	existing.RecoveryAfter = m.RecoveryAfter
	existing.Enabled = m.Enabled
	existing.ComponentID = m.ComponentID
	existing.UpdatedAt = m.UpdatedAt
	return nil
}

// SetEnabled pauses or resumes a monitor.
func (r *InMemoryRepository) SetEnabled(_ context.Context, id string, enabled bool) error {
	return r.mutate(id, func(m *Monitor) {
		m.Enabled = enabled
		m.UpdatedAt = time.Now()
	})
}

// RecordHeartbeat stores a liveness timestamp.
func (r *InMemoryRepository) RecordHeartbeat(_ context.Context, id string, at time.Time) error {
	return r.mutate(id, func(m *Monitor) { m.LastHeartbeatAt = &at })
}

// UpdateStatus sets the derived status fields.
func (r *InMemoryRepository) UpdateStatus(_ context.Context, id string, status Status, checkedAt time.Time) error {
	return r.mutate(id, func(m *Monitor) {
		m.CurrentStatus = status
		m.LastCheckedAt = &checkedAt
	})
}

// UpdateUptime stores the aggregated uptime cache fields.
func (r *InMemoryRepository) UpdateUptime(_ context.Context, id string, cache UptimeCache) error {
	return r.mutate(id, func(m *Monitor) {
		m.UptimeDay = cache.Day
		m.UptimeWeek = cache.Week
		m.UptimeMonth = cache.Month
		m.AvgResponseTime = cache.AvgResponseTime
	})
}

func (r *InMemoryRepository) mutate(id string, fn func(*Monitor)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.monitors[id]
	if !ok {
		return ErrMonitorNotFound
	}
	fn(m)
	return nil
}

// AppendCheck appends a check result. Insertion order breaks timestamp ties.
func (r *InMemoryRepository) AppendCheck(_ context.Context, check *CheckResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *check
	r.checks[check.MonitorID] = append(r.checks[check.MonitorID], &cpy)
	return nil
}

// ordered returns the monitor's checks oldest first; caller holds the lock.
func (r *InMemoryRepository) ordered(monitorID string) []*CheckResult {
	src := r.checks[monitorID]
	out := make([]*CheckResult, len(src))
	for i, c := range src {
		cpy := *c
		out[i] = &cpy
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CheckedAt.Before(out[j].CheckedAt)
	})
	return out
}

// RecentChecks returns up to limit checks, most recent first.
func (r *InMemoryRepository) RecentChecks(_ context.Context, monitorID string, limit int) ([]*CheckResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.ordered(monitorID)
	out := make([]*CheckResult, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// ChecksBetween returns checks within [from, to], oldest first.
func (r *InMemoryRepository) ChecksBetween(_ context.Context, monitorID string, from, to time.Time) ([]*CheckResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*CheckResult
	for _, c := range r.ordered(monitorID) {
		if !c.CheckedAt.Before(from) && !c.CheckedAt.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListChecks pages through the check log, most recent first.
func (r *InMemoryRepository) ListChecks(_ context.Context, monitorID string, opts ListOptions) (*CheckPage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	all := r.ordered(monitorID)
	start := len(all) - 1
	if opts.Cursor != "" {
		for i := range all {
			if all[i].ID == opts.Cursor {
				start = i - 1
				break
			}
		}
	}

	var items []*CheckResult
	for i := start; i >= 0 && len(items) <= limit; i-- {
		items = append(items, all[i])
	}

	page := &CheckPage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextCursor = items[limit-1].ID
	}
	return page, nil
}

// CreateAlert persists an alert record.
func (r *InMemoryRepository) CreateAlert(_ context.Context, alert *Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *alert
	r.alerts = append(r.alerts, &cpy)
	return nil
}

// Alerts returns all alerts recorded for a monitor, oldest first.
func (r *InMemoryRepository) Alerts(monitorID string) []*Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Alert
	for _, a := range r.alerts {
		if a.MonitorID == monitorID {
			cpy := *a
			out = append(out, &cpy)
		}
	}
	return out
}

// SetComponentStatus updates the status of a component.
func (r *InMemoryRepository) SetComponentStatus(_ context.Context, componentID string, status ComponentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.components[componentID] = status
	return nil
}

// ComponentStatus returns the last status written for a component.
func (r *InMemoryRepository) ComponentStatus(componentID string) (ComponentStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.components[componentID]
	return s, ok
}

// Ping always succeeds.
func (r *InMemoryRepository) Ping(context.Context) error { return nil }

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
