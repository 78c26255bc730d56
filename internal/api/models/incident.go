package models

// IncidentEventRequest is posted by the incident manager when an incident is
// created, updated or resolved.
type IncidentEventRequest struct {
	// Event is one of incident.created, incident.updated, incident.resolved.
	Event   string `json:"event"`
	ID      string `json:"id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Impact  string `json:"impact,omitempty"`
	Message string `json:"message,omitempty"`
}

// DeliveryResult is the outcome of one notification target.
type DeliveryResult struct {
	Target   string  `json:"target"`
	Channel  string  `json:"channel"`
	Attempts int     `json:"attempts"`
	Error    *string `json:"error,omitempty"`
}

// IncidentEventResponse summarizes the fan-out of an incident event.
type IncidentEventResponse struct {
	Delivered  int              `json:"delivered"`
	Failed     int              `json:"failed"`
	Deliveries []DeliveryResult `json:"deliveries"`
}

// CheckNowResponse acknowledges an on-demand check request.
type CheckNowResponse struct {
	MonitorID string `json:"monitorId"`
	Queued    bool   `json:"queued"`
}
