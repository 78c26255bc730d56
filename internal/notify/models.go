// Package notify fans alert and incident events out to notification
// channels and status page subscribers.
package notify

import (
	"errors"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// Errors.
var (
	ErrChannelNotFound      = errors.New("notification channel not found")
	ErrUnsupportedChannel   = errors.New("unsupported channel type")
	ErrMissingSigningSecret = errors.New("webhook signing enabled but no secret configured")
	ErrMissingURL           = errors.New("channel has no URL configured")
	ErrNoRecipients         = errors.New("email channel has no recipients")
	ErrSMTPNotConfigured    = errors.New("SMTP is not configured")
)

// ChannelType identifies a delivery protocol.
type ChannelType string

const (
	ChannelEmail   ChannelType = "EMAIL"
	ChannelWebhook ChannelType = "WEBHOOK"
	ChannelSlack   ChannelType = "SLACK"
)

// ChannelConfig is the delivery configuration of a channel.
type ChannelConfig struct {
	// EMAIL
	Recipients []string `json:"recipients,omitempty"`

	// WEBHOOK, SLACK
	URL string `json:"url,omitempty"`

	// WEBHOOK
	Secret  string            `json:"secret,omitempty"`
	Sign    bool              `json:"sign,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Channel is a configured outbound notification destination.
type Channel struct {
	ID        string
	TenantID  string
	Name      string
	Type      ChannelType
	Config    ChannelConfig
	Enabled   bool
	CreatedAt time.Time
}

// Subscriber is a status page email subscriber.
type Subscriber struct {
	ID        string
	TenantID  string
	Email     string
	Confirmed bool
	CreatedAt time.Time
}

// EventType is the kind of event being delivered.
type EventType string

const (
	EventMonitorDown      EventType = "monitor.down"
	EventMonitorRecovered EventType = "monitor.recovered"
	EventMonitorDegraded  EventType = "monitor.degraded"
	EventSSLExpiry        EventType = "monitor.ssl_expiry"
	EventIncidentCreated  EventType = "incident.created"
	EventIncidentUpdated  EventType = "incident.updated"
	EventIncidentResolved EventType = "incident.resolved"
)

// EventForAlert maps an alert type onto the event delivered for it.
func EventForAlert(t monitor.AlertType) EventType {
	switch t {
	case monitor.AlertDown:
		return EventMonitorDown
	case monitor.AlertRecovery:
		return EventMonitorRecovered
	case monitor.AlertSSLExpiry:
		return EventSSLExpiry
	default:
		return EventMonitorDegraded
	}
}

// MonitorInfo describes the monitor an event is about.
type MonitorInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Target       string `json:"target,omitempty"`
	Status       string `json:"status"`
	ResponseTime int    `json:"responseTime"`
	Error        string `json:"error,omitempty"`
}

// Incident is the part of an incident that is announced to subscribers.
type Incident struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"` // investigating, identified, monitoring, resolved
	Impact    string    `json:"impact,omitempty"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Event is one notification-worthy occurrence.
type Event struct {
	Type       EventType
	TenantID   string
	Title      string
	Message    string
	Monitor    *MonitorInfo
	Incident   *Incident
	OccurredAt time.Time
}

// IsIncident reports whether the event is about an incident.
func (e Event) IsIncident() bool {
	return strings.HasPrefix(string(e.Type), "incident.")
}

// Severity classifies the event for presentation: critical, warning, ok or info.
func (e Event) Severity() string {
	switch e.Type {
	case EventMonitorDown:
		return "critical"
	case EventMonitorDegraded, EventSSLExpiry:
		return "warning"
	case EventMonitorRecovered, EventIncidentResolved:
		return "ok"
	default:
		return "info"
	}
}

// NewAlertEvent builds the event for an alert on m with the check outcome
// that triggered it.
func NewAlertEvent(m *monitor.Monitor, a *monitor.Alert, check *monitor.CheckResult) Event {
	info := &MonitorInfo{
		ID:     m.ID,
		Name:   m.Name,
		Type:   string(m.Type),
		Target: target(m),
	}
	if check != nil {
		info.Status = string(check.Status)
		info.ResponseTime = check.ResponseTime
		if check.Error != nil {
			info.Error = *check.Error
		}
	}

	return Event{
		Type:       EventForAlert(a.Type),
		TenantID:   m.TenantID,
		Title:      alertTitle(m.Name, a.Type),
		Message:    a.Message,
		Monitor:    info,
		OccurredAt: a.CreatedAt,
	}
}

func alertTitle(name string, t monitor.AlertType) string {
	switch t {
	case monitor.AlertDown:
		return name + " is down"
	case monitor.AlertRecovery:
		return name + " has recovered"
	case monitor.AlertSSLExpiry:
		return name + " certificate is expiring"
	default:
		return name + " is degraded"
	}
}

func target(m *monitor.Monitor) string {
	switch m.Type {
	case monitor.TypeHTTP:
		return m.Config.URL
	case monitor.TypeHeartbeat:
		return ""
	case monitor.TypeDNS:
		return m.Config.Hostname()
	default:
		if m.Config.Port != 0 {
			return m.Config.Address(m.Config.Port)
		}
		return m.Config.Hostname()
	}
}
