// Package processor turns checker outcomes into persisted check results,
// derived monitor state, alerts, component status and real-time events.
package processor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulsewatch/pulsewatch/internal/alert"
	"github.com/pulsewatch/pulsewatch/internal/broadcast"
	"github.com/pulsewatch/pulsewatch/internal/checker"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
	"github.com/pulsewatch/pulsewatch/internal/uptime"
)

// DefaultRegion is recorded on checks when no region is configured.
const DefaultRegion = "default"

// Store is the persistence the processor writes through.
type Store interface {
	AppendCheck(ctx context.Context, check *monitor.CheckResult) error
	UpdateStatus(ctx context.Context, id string, status monitor.Status, checkedAt time.Time) error
	RecentChecks(ctx context.Context, monitorID string, limit int) ([]*monitor.CheckResult, error)
	CreateAlert(ctx context.Context, alert *monitor.Alert) error
	ChecksBetween(ctx context.Context, monitorID string, from, to time.Time) ([]*monitor.CheckResult, error)
	UpdateUptime(ctx context.Context, id string, cache monitor.UptimeCache) error
	SetComponentStatus(ctx context.Context, componentID string, status monitor.ComponentStatus) error
}

// Notifier delivers alerts. Implementations must not block on delivery.
type Notifier interface {
	NotifyAlert(ctx context.Context, m *monitor.Monitor, a *monitor.Alert, check *monitor.CheckResult)
}

// Archiver mirrors check results to secondary storage.
type Archiver interface {
	Archive(ctx context.Context, m *monitor.Monitor, check *monitor.CheckResult) error
}

// Config holds processor dependencies. Notifier, Broadcaster and Archiver
// are optional.
type Config struct {
	Store       Store
	Notifier    Notifier
	Broadcaster broadcast.Broadcaster
	Archiver    Archiver
	Region      string
	Now         func() time.Time
	Logger      zerolog.Logger
}

// Processor handles one checker outcome at a time. It is safe for
// concurrent use across monitors.
type Processor struct {
	store       Store
	notifier    Notifier
	broadcaster broadcast.Broadcaster
	archiver    Archiver
	region      string
	now         func() time.Time
	logger      zerolog.Logger
}

// New creates a processor.
func New(cfg Config) *Processor {
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Processor{
		store:       cfg.Store,
		notifier:    cfg.Notifier,
		broadcaster: cfg.Broadcaster,
		archiver:    cfg.Archiver,
		region:      cfg.Region,
		now:         cfg.Now,
		logger:      cfg.Logger.With().Str("component", "processor").Logger(),
	}
}

// Outcome summarises what processing a check produced.
type Outcome struct {
	Check           *monitor.CheckResult
	Status          monitor.Status
	Alert           *monitor.Alert
	Uptime          *monitor.UptimeCache
	ComponentStatus monitor.ComponentStatus
}

// Process records res for m. Steps after the check append are best effort:
// a failing step is logged and does not undo earlier ones. It returns nil
// only when the check itself could not be stored.
func (p *Processor) Process(ctx context.Context, m *monitor.Monitor, res checker.Result) *Outcome {
	logger := p.logger.With().
		Str("monitor_id", m.ID).
		Str("tenant_id", m.TenantID).
		Logger()

	now := p.now().UTC()
	check := &monitor.CheckResult{
		ID:           "chk_" + uuid.New().String()[:22],
		MonitorID:    m.ID,
		Status:       res.Status,
		ResponseTime: res.ResponseTime,
		StatusCode:   res.StatusCode,
		Region:       p.region,
		CheckedAt:    now,
	}
	if res.Error != "" {
		errText := res.Error
		check.Error = &errText
	}

	if err := p.store.AppendCheck(ctx, check); err != nil {
		logger.Error().Err(err).Msg("failed to store check result")
		return nil
	}
	p.archive(ctx, logger, m, check)

	previous := m.CurrentStatus
	if previous == "" {
		previous = monitor.StatusUp
	}
	out := &Outcome{Check: check, Status: previous}

	recent, err := p.store.RecentChecks(ctx, m.ID, m.CheckWindow()+1)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load recent checks")
		recent = []*monitor.CheckResult{check}
	}

	transition := alert.Evaluate(previous, m.AlertAfter, m.RecoveryAfter, recent).ForMonitor(m)
	if transition != nil {
		out.Status = transition.Status
	}

	if err := p.store.UpdateStatus(ctx, m.ID, out.Status, now); err != nil {
		logger.Error().Err(err).Msg("failed to update monitor status")
	}

	if transition != nil {
		out.Alert = p.raise(ctx, logger, m, transition, check)
	}

	out.Uptime = p.refreshUptime(ctx, logger, m, now)

	updated := *m
	updated.CurrentStatus = out.Status
	updated.LastCheckedAt = &now
	if out.Uptime != nil {
		updated.UptimeDay = out.Uptime.Day
		updated.UptimeWeek = out.Uptime.Week
		updated.UptimeMonth = out.Uptime.Month
		updated.AvgResponseTime = out.Uptime.AvgResponseTime
	}

	if m.ComponentID != nil && *m.ComponentID != "" {
		out.ComponentStatus = p.syncComponent(ctx, logger, &updated, check, recent)
	}

	p.emit(m.TenantID, broadcast.Event{
		Type: broadcast.EventMonitorStatusChanged,
		Data: StatusChange{Monitor: summarize(&updated), Check: check},
	})

	return out
}

func (p *Processor) archive(ctx context.Context, logger zerolog.Logger, m *monitor.Monitor, check *monitor.CheckResult) {
	if p.archiver == nil {
		return
	}
	if err := p.archiver.Archive(ctx, m, check); err != nil {
		logger.Warn().Err(err).Msg("failed to archive check result")
	}
}

func (p *Processor) raise(ctx context.Context, logger zerolog.Logger, m *monitor.Monitor, t *alert.Transition, check *monitor.CheckResult) *monitor.Alert {
	var lastError string
	if check.Error != nil {
		lastError = *check.Error
	}

	a := &monitor.Alert{
		ID:        "alt_" + uuid.New().String()[:22],
		MonitorID: m.ID,
		Type:      t.Type,
		Message:   t.Message(m, lastError),
		CreatedAt: check.CheckedAt,
	}
	if err := p.store.CreateAlert(ctx, a); err != nil {
		logger.Error().Err(err).Str("alert_type", string(a.Type)).Msg("failed to store alert")
		return nil
	}
	metrics.ObserveAlert(string(a.Type))

	logger.Info().
		Str("alert_type", string(a.Type)).
		Str("status", string(t.Status)).
		Msg(a.Message)

	if p.notifier != nil {
		p.notifier.NotifyAlert(ctx, m, a, check)
	}
	return a
}

func (p *Processor) refreshUptime(ctx context.Context, logger zerolog.Logger, m *monitor.Monitor, now time.Time) *monitor.UptimeCache {
	checks, err := p.store.ChecksBetween(ctx, m.ID, now.Add(-uptime.Month), now)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load check history")
		return nil
	}

	cache := monitor.UptimeCache(uptime.Cache(checks, now))
	if err := p.store.UpdateUptime(ctx, m.ID, cache); err != nil {
		logger.Error().Err(err).Msg("failed to update uptime cache")
		return nil
	}
	return &cache
}

// syncComponent writes the component status for the latest outcome and
// announces it when it differs from the previous outcome's mapping.
func (p *Processor) syncComponent(ctx context.Context, logger zerolog.Logger, m *monitor.Monitor, check *monitor.CheckResult, recent []*monitor.CheckResult) monitor.ComponentStatus {
	status := monitor.ComponentStatusFor(check.Status)
	if err := p.store.SetComponentStatus(ctx, *m.ComponentID, status); err != nil {
		logger.Error().Err(err).Str("component_id", *m.ComponentID).Msg("failed to update component status")
		return ""
	}

	changed := true
	if len(recent) > 1 && recent[0].ID == check.ID {
		changed = monitor.ComponentStatusFor(recent[1].Status) != status
	}
	if changed {
		p.emit(m.TenantID, broadcast.Event{
			Type: broadcast.EventComponentStatusChanged,
			Data: ComponentChange{ComponentID: *m.ComponentID, Status: status, MonitorID: m.ID},
		})
	}
	return status
}

func (p *Processor) emit(tenantID string, ev broadcast.Event) {
	if p.broadcaster == nil {
		return
	}
	p.broadcaster.BroadcastAll(tenantID, ev)
}
