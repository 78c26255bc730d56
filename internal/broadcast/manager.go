// Package broadcast multiplexes real-time events to live viewer connections,
// keyed by tenant and audience.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsewatch/pulsewatch/internal/metrics"
)

// Audience is a class of real-time subscriber.
type Audience string

const (
	AudienceDashboard Audience = "dashboard"
	AudiencePublic    Audience = "public"
)

// Audiences lists every audience BroadcastAll reaches.
var Audiences = []Audience{AudienceDashboard, AudiencePublic}

// Event types.
const (
	EventMonitorStatusChanged   = "monitor-status-changed"
	EventIncidentUpdated        = "incident-updated"
	EventComponentStatusChanged = "component-status-changed"
)

// DefaultKeepAlive is the keep-alive frame interval.
const DefaultKeepAlive = 30 * time.Second

// Event is one real-time event. Data is encoded as JSON.
type Event struct {
	Type string
	Data any
}

// Conn is a live viewer connection. Implementations must be safe for
// concurrent use.
type Conn interface {
	// Send writes one framed event.
	Send(ev Event) error

	// KeepAlive writes a frame that carries no event.
	KeepAlive() error

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Broadcaster publishes events to a tenant's viewers.
type Broadcaster interface {
	Broadcast(tenantID string, audience Audience, ev Event)
	BroadcastAll(tenantID string, ev Event)
}

type key struct {
	tenantID string
	audience Audience
}

// Config holds manager settings.
type Config struct {
	// KeepAlive is the interval between keep-alive frames.
	// Default: 30 seconds
	KeepAlive time.Duration

	Logger zerolog.Logger
}

// Manager holds the connection registries.
type Manager struct {
	mu        sync.RWMutex
	conns     map[key]map[Conn]struct{}
	keepAlive time.Duration
	logger    zerolog.Logger
}

// NewManager creates an empty manager.
func NewManager(cfg Config) *Manager {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	return &Manager{
		conns:     make(map[key]map[Conn]struct{}),
		keepAlive: cfg.KeepAlive,
		logger:    cfg.Logger.With().Str("component", "broadcast").Logger(),
	}
}

// Add registers c under (tenantID, audience).
func (m *Manager) Add(tenantID string, audience Audience, c Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{tenantID, audience}
	set, ok := m.conns[k]
	if !ok {
		set = make(map[Conn]struct{})
		m.conns[k] = set
	}
	if _, dup := set[c]; dup {
		return
	}
	set[c] = struct{}{}
	metrics.StreamOpened(string(audience))
}

// Remove unregisters c. Removing an unknown connection is a no-op.
func (m *Manager) Remove(tenantID string, audience Audience, c Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key{tenantID, audience}, c)
}

func (m *Manager) removeLocked(k key, c Conn) {
	set, ok := m.conns[k]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(m.conns, k)
	}
	metrics.StreamClosed(string(k.audience))
}

// Count returns the number of connections under (tenantID, audience).
func (m *Manager) Count(tenantID string, audience Audience) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns[key{tenantID, audience}])
}

// Totals returns the number of open connections per audience across all
// tenants.
func (m *Manager) Totals() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(Audiences))
	for _, audience := range Audiences {
		out[string(audience)] = 0
	}
	for k, set := range m.conns {
		out[string(k.audience)] += len(set)
	}
	return out
}

// Broadcast sends ev to every connection under (tenantID, audience) and
// prunes connections whose write fails.
func (m *Manager) Broadcast(tenantID string, audience Audience, ev Event) {
	k := key{tenantID, audience}
	m.deliver(k, m.snapshot(k), func(c Conn) error { return c.Send(ev) })
}

// BroadcastAll sends ev to every audience of tenantID.
func (m *Manager) BroadcastAll(tenantID string, ev Event) {
	for _, audience := range Audiences {
		m.Broadcast(tenantID, audience, ev)
	}
}

// Run sends keep-alive frames until ctx is done, then closes every
// connection.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			m.KeepAlive()
		}
	}
}

// KeepAlive writes a keep-alive frame to every connection.
func (m *Manager) KeepAlive() {
	m.mu.RLock()
	keys := make([]key, 0, len(m.conns))
	for k := range m.conns {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	for _, k := range keys {
		m.deliver(k, m.snapshot(k), Conn.KeepAlive)
	}
}

func (m *Manager) snapshot(k key) []Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.conns[k]
	conns := make([]Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

func (m *Manager) deliver(k key, conns []Conn, write func(Conn) error) {
	var failed []Conn
	for _, c := range conns {
		if err := write(c); err != nil {
			m.logger.Debug().
				Err(err).
				Str("tenant_id", k.tenantID).
				Str("audience", string(k.audience)).
				Msg("pruning stream connection")
			failed = append(failed, c)
		}
	}
	if len(failed) == 0 {
		return
	}

	m.mu.Lock()
	for _, c := range failed {
		m.removeLocked(k, c)
	}
	m.mu.Unlock()

	for _, c := range failed {
		_ = c.Close()
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	var all []Conn
	for k, set := range m.conns {
		for c := range set {
			all = append(all, c)
			metrics.StreamClosed(string(k.audience))
		}
	}
	m.conns = make(map[key]map[Conn]struct{})
	m.mu.Unlock()

	for _, c := range all {
		_ = c.Close()
	}
}

var _ Broadcaster = (*Manager)(nil)
