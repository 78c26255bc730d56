package models

// MonitorConfig is the protocol specific configuration of a monitor.
type MonitorConfig struct {
	URL                 string            `json:"url,omitempty"`
	Method              string            `json:"method,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	Body                string            `json:"body,omitempty"`
	ExpectedStatus      int               `json:"expectedStatus,omitempty"`
	Keyword             string            `json:"keyword,omitempty"`
	KeywordType         string            `json:"keywordType,omitempty"`
	Host                string            `json:"host,omitempty"`
	Port                int               `json:"port,omitempty"`
	PingCount           int               `json:"pingCount,omitempty"`
	ExpiryThresholdDays int               `json:"expiryThresholdDays,omitempty"`
	ExpectedIP          string            `json:"expectedIp,omitempty"`
	ExpectedCNAME       string            `json:"expectedCname,omitempty"`
	GracePeriod         int               `json:"gracePeriod,omitempty"`
}

// Monitor represents a monitor as returned by the API.
type Monitor struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Type            string        `json:"type"`
	Config          MonitorConfig `json:"config"`
	Interval        int           `json:"interval"`
	Timeout         int           `json:"timeout"`
	AlertAfter      int           `json:"alertAfter"`
	RecoveryAfter   int           `json:"recoveryAfter"`
	Enabled         bool          `json:"enabled"`
	HeartbeatToken  *string       `json:"heartbeatToken,omitempty"`
	ComponentID     *string       `json:"componentId,omitempty"`
	CurrentStatus   string        `json:"currentStatus"`
	LastCheckedAt   *Timestamp    `json:"lastCheckedAt,omitempty"`
	LastHeartbeatAt *Timestamp    `json:"lastHeartbeatAt,omitempty"`
	UptimeDay       float64       `json:"uptimeDay"`
	UptimeWeek      float64       `json:"uptimeWeek"`
	UptimeMonth     float64       `json:"uptimeMonth"`
	AvgResponseTime int           `json:"avgResponseTime"`
	CreatedAt       Timestamp     `json:"createdAt"`
	UpdatedAt       Timestamp     `json:"updatedAt"`
}

// MonitorCreateRequest is the request body for creating a monitor.
type MonitorCreateRequest struct {
	Name          string        `json:"name"`
	Type          string        `json:"type"`
	Config        MonitorConfig `json:"config"`
	Interval      int           `json:"interval,omitempty"`
	Timeout       int           `json:"timeout,omitempty"`
	AlertAfter    int           `json:"alertAfter,omitempty"`
	RecoveryAfter int           `json:"recoveryAfter,omitempty"`
	ComponentID   *string       `json:"componentId,omitempty"`
}

// MonitorUpdateRequest is the request body for updating a monitor.
// The monitor type cannot be changed.
type MonitorUpdateRequest struct {
	Name          *string        `json:"name,omitempty"`
	Config        *MonitorConfig `json:"config,omitempty"`
	Interval      *int           `json:"interval,omitempty"`
	Timeout       *int           `json:"timeout,omitempty"`
	AlertAfter    *int           `json:"alertAfter,omitempty"`
	RecoveryAfter *int           `json:"recoveryAfter,omitempty"`
	ComponentID   *string        `json:"componentId,omitempty"`
}

// MonitorList is the list of a tenant's monitors.
type MonitorList struct {
	Items []Monitor `json:"items"`
}

// CheckResult represents one entry of a monitor's check history.
type CheckResult struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	ResponseTime int       `json:"responseTime"`
	StatusCode   *int      `json:"statusCode,omitempty"`
	Error        *string   `json:"error,omitempty"`
	Region       string    `json:"region"`
	CheckedAt    Timestamp `json:"checkedAt"`
}

// PagedChecks represents a paginated check history.
type PagedChecks struct {
	Items []CheckResult     `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// UptimeBar is a per-day uptime aggregate.
type UptimeBar struct {
	Date          string  `json:"date"`
	TotalChecks   int     `json:"totalChecks"`
	DownChecks    int     `json:"downChecks"`
	UptimePercent float64 `json:"uptimePercent"`
}

// MonitorStats holds the uptime statistics of a monitor.
type MonitorStats struct {
	MonitorID       string      `json:"monitorId"`
	CurrentStatus   string      `json:"currentStatus"`
	UptimeDay       float64     `json:"uptimeDay"`
	UptimeWeek      float64     `json:"uptimeWeek"`
	UptimeMonth     float64     `json:"uptimeMonth"`
	AvgResponseTime int         `json:"avgResponseTime"`
	Bars            []UptimeBar `json:"bars"`
}

// ResponseTimePoint is one bucket of a response time series.
type ResponseTimePoint struct {
	Time  Timestamp `json:"time"`
	Avg   int       `json:"avg"`
	Min   int       `json:"min"`
	Max   int       `json:"max"`
	Count int       `json:"count"`
}

// ResponseTimeSeries is a bucketed response time series.
type ResponseTimeSeries struct {
	MonitorID string              `json:"monitorId"`
	Bucket    string              `json:"bucket"`
	Points    []ResponseTimePoint `json:"points"`
}

// HeartbeatAck is returned by the heartbeat ingress.
type HeartbeatAck struct {
	OK         bool      `json:"ok"`
	ReceivedAt Timestamp `json:"receivedAt"`
}
