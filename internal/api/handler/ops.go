package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pulsewatch/pulsewatch/internal/api/models"
	"github.com/pulsewatch/pulsewatch/internal/api/response"
	"github.com/pulsewatch/pulsewatch/internal/resilience"
)

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SchedulerStatus exposes scheduler counters.
type SchedulerStatus interface {
	MetricsSnapshot() map[string]interface{}
}

// StreamCounter reports open stream connections per audience.
type StreamCounter interface {
	Totals() map[string]int
}

// OpsConfig wires the ops handler. Nil collaborators are omitted from the
// status report.
type OpsConfig struct {
	Version   string
	BuildTime string
	Store     Pinger
	Registry  *resilience.Registry
	Scheduler SchedulerStatus
	Streams   StreamCounter
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// readyTimeout bounds the store ping of the readiness probe.
const readyTimeout = 2 * time.Second

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready - pings the store.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{Status: models.HealthStatusOK, Time: models.Timestamp(time.Now())}
	if err := h.pingStore(r.Context()); err != nil {
		health.Status = models.HealthStatusFail
		health.Details = map[string]interface{}{"store": err.Error()}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - store, delivery and scheduler
// health.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: []models.SubsystemStatus{},
		Deliveries: []models.DeliveryStatus{},
	}

	if h.cfg.Store != nil {
		sub := models.SubsystemStatus{Name: "store", Status: models.HealthStatusOK}
		if err := h.pingStore(r.Context()); err != nil {
			msg := err.Error()
			sub.Status = models.HealthStatusFail
			sub.Detail = &msg
			status.Status = models.HealthStatusFail
		}
		status.Subsystems = append(status.Subsystems, sub)
	}

	if h.cfg.Registry != nil {
		for _, health := range h.cfg.Registry.GetAllHealth() {
			d := deliveryStatus(health)
			if d.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Deliveries = append(status.Deliveries, d)
		}
	}

	if h.cfg.Scheduler != nil {
		status.Scheduler = h.cfg.Scheduler.MetricsSnapshot()
	}
	if h.cfg.Streams != nil {
		status.Streams = h.cfg.Streams.Totals()
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pingStore(ctx context.Context) error {
	if h.cfg.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	return h.cfg.Store.Ping(ctx)
}

func deliveryStatus(h *resilience.DeliveryHealth) models.DeliveryStatus {
	d := models.DeliveryStatus{
		Destination:   h.Name,
		Status:        models.HealthStatusOK,
		CircuitState:  h.CircuitState.String(),
		LastSuccessAt: models.TimestampPtr(h.LastSuccessAt),
		LastFailureAt: models.TimestampPtr(h.LastFailureAt),
	}
	switch h.CircuitState {
	case gobreaker.StateOpen:
		d.Status = models.HealthStatusFail
	case gobreaker.StateHalfOpen:
		d.Status = models.HealthStatusDegraded
	}
	if h.LastError != "" {
		msg := h.LastError
		d.Message = &msg
	}
	return d
}
