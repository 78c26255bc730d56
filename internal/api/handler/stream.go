package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pulsewatch/pulsewatch/internal/api/response"
	"github.com/pulsewatch/pulsewatch/internal/broadcast"
)

// StreamHandler serves the real-time event streams.
type StreamHandler struct {
	manager  *broadcast.Manager
	upgrader *websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler. allowLocalOrigins admits
// WebSocket upgrades from localhost pages.
func NewStreamHandler(manager *broadcast.Manager, allowedOrigins []string, allowLocalOrigins bool) *StreamHandler {
	return &StreamHandler{
		manager:  manager,
		upgrader: broadcast.NewUpgrader(allowedOrigins, allowLocalOrigins),
	}
}

// DashboardSSE handles GET /v1/stream for the authenticated tenant.
func (h *StreamHandler) DashboardSSE(w http.ResponseWriter, r *http.Request) {
	h.manager.ServeSSE(w, r, GetTenantID(r.Context()), broadcast.AudienceDashboard)
}

// DashboardWS handles GET /v1/stream/ws for the authenticated tenant.
func (h *StreamHandler) DashboardWS(w http.ResponseWriter, r *http.Request) {
	h.manager.ServeWS(h.upgrader, w, r, GetTenantID(r.Context()), broadcast.AudienceDashboard)
}

// PublicSSE handles GET /v1/public/{tenantId}/stream for status pages.
func (h *StreamHandler) PublicSSE(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		response.BadRequest(w, r, "tenantId is required", nil)
		return
	}
	h.manager.ServeSSE(w, r, tenantID, broadcast.AudiencePublic)
}
