// Package handler provides HTTP handlers for the pulsewatch API.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pulsewatch/pulsewatch/internal/api/models"
	"github.com/pulsewatch/pulsewatch/internal/api/response"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
	"github.com/pulsewatch/pulsewatch/internal/scheduler"
)

// CheckTrigger runs or enqueues an immediate check of one monitor.
type CheckTrigger interface {
	CheckNow(ctx context.Context, monitorID string) error
}

// MonitorHandler handles monitor management endpoints.
type MonitorHandler struct {
	service *monitor.Service
	trigger CheckTrigger
	logger  zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler. trigger may be nil, in
// which case on-demand checks answer 503.
func NewMonitorHandler(service *monitor.Service, trigger CheckTrigger, logger zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{service: service, trigger: trigger, logger: logger}
}

// ListMonitors handles GET /v1/monitors.
func (h *MonitorHandler) ListMonitors(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		h.fail(w, r, err, "list monitors")
		return
	}
	response.JSON(w, r, http.StatusOK, list)
}

// CreateMonitor handles POST /v1/monitors.
func (h *MonitorHandler) CreateMonitor(w http.ResponseWriter, r *http.Request) {
	var input models.MonitorCreateRequest
	if err := response.Decode(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	created, err := h.service.Create(r.Context(), GetTenantID(r.Context()), &input)
	if err != nil {
		h.fail(w, r, err, "create monitor")
		return
	}
	response.Created(w, r, fmt.Sprintf("/v1/monitors/%s", created.ID), created)
}

// GetMonitor handles GET /v1/monitors/{monitorId}.
func (h *MonitorHandler) GetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Get(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "monitorId"))
	if err != nil {
		h.fail(w, r, err, "get monitor")
		return
	}
	response.JSON(w, r, http.StatusOK, m)
}

// UpdateMonitor handles PATCH /v1/monitors/{monitorId}.
func (h *MonitorHandler) UpdateMonitor(w http.ResponseWriter, r *http.Request) {
	var input models.MonitorUpdateRequest
	if err := response.Decode(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	m, err := h.service.Update(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "monitorId"), &input)
	if err != nil {
		h.fail(w, r, err, "update monitor")
		return
	}
	response.JSON(w, r, http.StatusOK, m)
}

// PauseMonitor handles POST /v1/monitors/{monitorId}/pause.
func (h *MonitorHandler) PauseMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Pause(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "monitorId"))
	if err != nil {
		h.fail(w, r, err, "pause monitor")
		return
	}
	response.JSON(w, r, http.StatusOK, m)
}

// ResumeMonitor handles POST /v1/monitors/{monitorId}/resume.
func (h *MonitorHandler) ResumeMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Resume(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "monitorId"))
	if err != nil {
		h.fail(w, r, err, "resume monitor")
		return
	}
	response.JSON(w, r, http.StatusOK, m)
}

// ListChecks handles GET /v1/monitors/{monitorId}/checks?limit=&cursor=.
func (h *MonitorHandler) ListChecks(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.History(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "monitorId"),
		queryInt(r, "limit"), r.URL.Query().Get("cursor"))
	if err != nil {
		h.fail(w, r, err, "list checks")
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

// GetStats handles GET /v1/monitors/{monitorId}/stats?days=.
func (h *MonitorHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "monitorId"), queryInt(r, "days"))
	if err != nil {
		h.fail(w, r, err, "monitor stats")
		return
	}
	response.JSON(w, r, http.StatusOK, stats)
}

// GetResponseTimes handles GET /v1/monitors/{monitorId}/response-times?hours=.
func (h *MonitorHandler) GetResponseTimes(w http.ResponseWriter, r *http.Request) {
	series, err := h.service.ResponseTimes(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "monitorId"), queryInt(r, "hours"))
	if err != nil {
		h.fail(w, r, err, "response times")
		return
	}
	response.JSON(w, r, http.StatusOK, series)
}

// CheckNow handles POST /v1/monitors/{monitorId}/check.
func (h *MonitorHandler) CheckNow(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		response.ServiceUnavailable(w, r, "on-demand checks are not available on this instance")
		return
	}

	m, err := h.service.Owned(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "monitorId"))
	if err != nil {
		h.fail(w, r, err, "check now")
		return
	}

	if err := h.trigger.CheckNow(r.Context(), m.ID); err != nil {
		if errors.Is(err, scheduler.ErrCheckInProgress) {
			response.Conflict(w, r, "a check of this monitor is already running")
			return
		}
		h.fail(w, r, err, "check now")
		return
	}
	response.Accepted(w, r, models.CheckNowResponse{MonitorID: m.ID, Queued: true})
}

// fail writes the Problem for err and logs unexpected failures.
func (h *MonitorHandler) fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	if !monitor.IsValidationError(err) && !errors.Is(err, monitor.ErrMonitorNotFound) {
		h.logger.Error().Err(err).Str("op", op).Str("tenant_id", GetTenantID(r.Context())).Msg("monitor request failed")
	}
	response.FromError(w, r, err)
}
