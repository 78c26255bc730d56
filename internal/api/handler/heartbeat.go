package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pulsewatch/pulsewatch/internal/api/models"
	"github.com/pulsewatch/pulsewatch/internal/api/response"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// HeartbeatHandler receives liveness pings from monitored jobs.
type HeartbeatHandler struct {
	service *monitor.Service
	logger  zerolog.Logger
}

// NewHeartbeatHandler creates a new HeartbeatHandler.
func NewHeartbeatHandler(service *monitor.Service, logger zerolog.Logger) *HeartbeatHandler {
	return &HeartbeatHandler{service: service, logger: logger}
}

// RecordHeartbeat handles GET and POST /heartbeat/{token}. The token is the
// only credential, so unknown tokens and non-heartbeat monitors are told
// apart only by status code.
func (h *HeartbeatHandler) RecordHeartbeat(w http.ResponseWriter, r *http.Request) {
	at, err := h.service.RecordHeartbeat(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.HeartbeatAck{OK: true, ReceivedAt: models.Timestamp(at)})
}
