package processor

import (
	"time"

	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// MonitorSummary is the monitor state sent to viewers. Target
// configuration is left out because public viewers receive it too.
type MonitorSummary struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Type            monitor.Type   `json:"type"`
	Status          monitor.Status `json:"status"`
	ComponentID     *string        `json:"componentId,omitempty"`
	LastCheckedAt   *time.Time     `json:"lastCheckedAt,omitempty"`
	UptimeDay       float64        `json:"uptimeDay"`
	UptimeWeek      float64        `json:"uptimeWeek"`
	UptimeMonth     float64        `json:"uptimeMonth"`
	AvgResponseTime int            `json:"avgResponseTime"`
}

// StatusChange is the payload of a monitor-status-changed event.
type StatusChange struct {
	Monitor MonitorSummary       `json:"monitor"`
	Check   *monitor.CheckResult `json:"check"`
}

// ComponentChange is the payload of a component-status-changed event.
type ComponentChange struct {
	ComponentID string                  `json:"componentId"`
	Status      monitor.ComponentStatus `json:"status"`
	MonitorID   string                  `json:"monitorId"`
}

func summarize(m *monitor.Monitor) MonitorSummary {
	return MonitorSummary{
		ID:              m.ID,
		Name:            m.Name,
		Type:            m.Type,
		Status:          m.CurrentStatus,
		ComponentID:     m.ComponentID,
		LastCheckedAt:   m.LastCheckedAt,
		UptimeDay:       m.UptimeDay,
		UptimeWeek:      m.UptimeWeek,
		UptimeMonth:     m.UptimeMonth,
		AvgResponseTime: m.AvgResponseTime,
	}
}
