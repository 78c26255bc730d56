// Package monitor holds the monitor data model, its persistence contract and
// the management service consumed by the HTTP API.
package monitor

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Repository errors.
var (
	ErrMonitorNotFound   = errors.New("monitor not found")
	ErrNotHeartbeat      = errors.New("monitor is not a heartbeat monitor")
	ErrComponentNotFound = errors.New("component not found")
)

// Type is the protocol a monitor checks with.
type Type string

const (
	TypeHTTP      Type = "HTTP"
	TypeTCP       Type = "TCP"
	TypePing      Type = "PING"
	TypeSSL       Type = "SSL"
	TypeDNS       Type = "DNS"
	TypeHeartbeat Type = "HEARTBEAT"
)

// Valid reports whether t is a supported monitor type.
func (t Type) Valid() bool {
	switch t {
	case TypeHTTP, TypeTCP, TypePing, TypeSSL, TypeDNS, TypeHeartbeat:
		return true
	}
	return false
}

// Status is the health of a monitor or the outcome of a single check.
type Status string

const (
	StatusUp       Status = "UP"
	StatusDown     Status = "DOWN"
	StatusDegraded Status = "DEGRADED"
)

// Available reports whether the status counts towards uptime.
func (s Status) Available() bool {
	return s == StatusUp || s == StatusDegraded
}

// KeywordType selects how an HTTP keyword is matched against the body.
type KeywordType string

const (
	KeywordContains    KeywordType = "CONTAINS"
	KeywordNotContains KeywordType = "NOT_CONTAINS"
)

// Config is the protocol specific target configuration of a monitor.
// Only the fields relevant to the monitor type are read.
type Config struct {
	// HTTP
	URL            string            `json:"url,omitempty"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	ExpectedStatus int               `json:"expectedStatus,omitempty"`
	Keyword        string            `json:"keyword,omitempty"`
	KeywordType    KeywordType       `json:"keywordType,omitempty"`

	// TCP, PING, SSL, DNS
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// PING
	PingCount int `json:"pingCount,omitempty"`

	// SSL
	ExpiryThresholdDays int `json:"expiryThresholdDays,omitempty"`

	// DNS
	ExpectedIP    string `json:"expectedIp,omitempty"`
	ExpectedCNAME string `json:"expectedCname,omitempty"`

	// HEARTBEAT
	GracePeriod int `json:"gracePeriod,omitempty"` // seconds
}

// Hostname returns Host, falling back to the host part of URL.
func (c Config) Hostname() string {
	if c.Host != "" {
		return c.Host
	}
	if c.URL == "" {
		return ""
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Address returns host:port, using Port, then the URL port, then def.
func (c Config) Address(def int) string {
	port := c.Port
	if port == 0 && c.URL != "" {
		if u, err := url.Parse(c.URL); err == nil && u.Port() != "" {
			port, _ = strconv.Atoi(u.Port())
		}
	}
	if port == 0 {
		port = def
	}
	return net.JoinHostPort(c.Hostname(), strconv.Itoa(port))
}

// Monitor is a configured, periodically checked target.
//
// Configuration fields are written by the management service; CurrentStatus,
// LastCheckedAt and the uptime cache are written by the result processor.
type Monitor struct {
	ID       string
	TenantID string
	Name     string
	Type     Type
	Config   Config

	Interval      int // seconds
	Timeout       int // seconds
	AlertAfter    int
	RecoveryAfter int
	Enabled       bool

	// HeartbeatToken is the secret used by the heartbeat ingress.
	HeartbeatToken string

	// ComponentID optionally links the monitor to a status page component.
	ComponentID *string

	CurrentStatus   Status
	LastCheckedAt   *time.Time
	LastHeartbeatAt *time.Time

	UptimeDay       float64
	UptimeWeek      float64
	UptimeMonth     float64
	AvgResponseTime int // ms

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultTimeout is used when a monitor has no timeout configured.
const DefaultTimeout = 30 * time.Second

// TimeoutDuration returns the per-check timeout.
func (m *Monitor) TimeoutDuration() time.Duration {
	if m.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(m.Timeout) * time.Second
}

// IsDue reports whether the monitor should be checked at now.
func (m *Monitor) IsDue(now time.Time) bool {
	if m.LastCheckedAt == nil {
		return true
	}
	next := m.LastCheckedAt.Add(time.Duration(m.Interval) * time.Second)
	return !next.After(now)
}

// CheckWindow is the number of recent checks the alert evaluator needs.
func (m *Monitor) CheckWindow() int {
	n := m.AlertAfter
	if m.RecoveryAfter > n {
		n = m.RecoveryAfter
	}
	if n < 1 {
		n = 1
	}
	return n
}

// CheckResult is one append-only entry of a monitor's check log.
type CheckResult struct {
	ID           string    `json:"id"`
	MonitorID    string    `json:"monitorId"`
	Status       Status    `json:"status"`
	ResponseTime int       `json:"responseTime"` // ms
	StatusCode   *int      `json:"statusCode,omitempty"`
	Error        *string   `json:"error,omitempty"`
	Region       string    `json:"region"`
	CheckedAt    time.Time `json:"checkedAt"`
}

// SampledAt returns the check time.
func (c *CheckResult) SampledAt() time.Time { return c.CheckedAt }

// Available reports whether the check counts towards uptime.
func (c *CheckResult) Available() bool { return c.Status.Available() }

// Down reports whether the check failed.
func (c *CheckResult) Down() bool { return c.Status == StatusDown }

// Latency returns the response time in milliseconds.
func (c *CheckResult) Latency() int { return c.ResponseTime }

// AlertType is the kind of state transition an alert records.
type AlertType string

const (
	AlertDown      AlertType = "DOWN"
	AlertRecovery  AlertType = "RECOVERY"
	AlertDegraded  AlertType = "DEGRADED"
	AlertSSLExpiry AlertType = "SSL_EXPIRY"
)

// Alert is a persisted state transition of a monitor.
type Alert struct {
	ID        string    `json:"id"`
	MonitorID string    `json:"monitorId"`
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// ComponentStatus is the status of a status page component.
type ComponentStatus string

const (
	ComponentOperational         ComponentStatus = "operational"
	ComponentDegradedPerformance ComponentStatus = "degraded_performance"
	ComponentMajorOutage         ComponentStatus = "major_outage"
)

// ComponentStatusFor maps a monitor outcome onto a component status.
func ComponentStatusFor(s Status) ComponentStatus {
	switch s {
	case StatusDown:
		return ComponentMajorOutage
	case StatusDegraded:
		return ComponentDegradedPerformance
	default:
		return ComponentOperational
	}
}

// UptimeCache holds the aggregated fields cached on a monitor.
type UptimeCache struct {
	Day             float64
	Week            float64
	Month           float64
	AvgResponseTime int
}
