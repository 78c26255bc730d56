package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsewatch/pulsewatch/internal/api/models"
	"github.com/pulsewatch/pulsewatch/internal/api/response"
	"github.com/pulsewatch/pulsewatch/internal/broadcast"
	"github.com/pulsewatch/pulsewatch/internal/notify"
)

// IncidentDispatcher fans an incident event out to channels and subscribers.
type IncidentDispatcher interface {
	DispatchIncident(ctx context.Context, tenantID string, inc notify.Incident, eventType notify.EventType) notify.Report
}

// IncidentHandler accepts incident lifecycle events from the incident
// manager and relays them to notification targets and live viewers.
type IncidentHandler struct {
	dispatcher  IncidentDispatcher
	broadcaster broadcast.Broadcaster
	now         func() time.Time
	logger      zerolog.Logger
}

// NewIncidentHandler creates a new IncidentHandler.
func NewIncidentHandler(dispatcher IncidentDispatcher, broadcaster broadcast.Broadcaster, logger zerolog.Logger) *IncidentHandler {
	return &IncidentHandler{
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		now:         time.Now,
		logger:      logger,
	}
}

var incidentEvents = map[string]notify.EventType{
	string(notify.EventIncidentCreated):  notify.EventIncidentCreated,
	string(notify.EventIncidentUpdated):  notify.EventIncidentUpdated,
	string(notify.EventIncidentResolved): notify.EventIncidentResolved,
}

// PostIncidentEvent handles POST /v1/incidents/events.
func (h *IncidentHandler) PostIncidentEvent(w http.ResponseWriter, r *http.Request) {
	var input models.IncidentEventRequest
	if err := response.Decode(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	eventType, fieldErrors := validateIncident(&input)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "request validation failed", fieldErrors)
		return
	}

	tenantID := GetTenantID(r.Context())
	inc := notify.Incident{
		ID:        input.ID,
		Title:     input.Title,
		Status:    input.Status,
		Impact:    input.Impact,
		Message:   input.Message,
		UpdatedAt: h.now().UTC(),
	}

	if h.broadcaster != nil {
		h.broadcaster.BroadcastAll(tenantID, broadcast.Event{Type: broadcast.EventIncidentUpdated, Data: inc})
	}

	report := h.dispatcher.DispatchIncident(r.Context(), tenantID, inc, eventType)

	result := models.IncidentEventResponse{Deliveries: make([]models.DeliveryResult, 0, len(report.Deliveries))}
	for _, d := range report.Deliveries {
		item := models.DeliveryResult{Target: d.Target, Channel: string(d.Channel), Attempts: d.Attempts}
		if d.Err != nil {
			msg := d.Err.Error()
			item.Error = &msg
			result.Failed++
		} else {
			result.Delivered++
		}
		result.Deliveries = append(result.Deliveries, item)
	}

	h.logger.Info().
		Str("tenant_id", tenantID).
		Str("incident_id", inc.ID).
		Str("event", string(eventType)).
		Int("delivered", result.Delivered).
		Int("failed", result.Failed).
		Msg("incident event dispatched")

	response.JSON(w, r, http.StatusOK, result)
}

func validateIncident(input *models.IncidentEventRequest) (notify.EventType, []models.FieldError) {
	var errs []models.FieldError
	eventType, ok := incidentEvents[input.Event]
	if !ok {
		errs = append(errs, models.FieldError{Field: "event", Message: "must be incident.created, incident.updated or incident.resolved", Code: "INVALID_ENUM"})
	}
	if input.ID == "" {
		errs = append(errs, models.FieldError{Field: "id", Message: "is required", Code: "REQUIRED"})
	}
	if input.Title == "" {
		errs = append(errs, models.FieldError{Field: "title", Message: "is required", Code: "REQUIRED"})
	}
	if input.Status == "" {
		errs = append(errs, models.FieldError{Field: "status", Message: "is required", Code: "REQUIRED"})
	}
	return eventType, errs
}
