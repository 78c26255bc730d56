package handler_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/api/handler"
	"github.com/pulsewatch/pulsewatch/internal/api/models"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
	"github.com/pulsewatch/pulsewatch/internal/scheduler"
)

type fakeTrigger struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeTrigger) CheckNow(_ context.Context, monitorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, monitorID)
	return f.err
}

func monitorRouter(t *testing.T, trigger handler.CheckTrigger) (http.Handler, *monitor.Service, *monitor.InMemoryRepository) {
	t.Helper()
	repo := monitor.NewInMemoryRepository()
	svc := monitor.NewService(repo)
	h := handler.NewMonitorHandler(svc, trigger, zerolog.Nop())

	router := authed(t, func(r chi.Router) {
		r.Get("/v1/monitors", h.ListMonitors)
		r.Post("/v1/monitors", h.CreateMonitor)
		r.Get("/v1/monitors/{monitorId}", h.GetMonitor)
		r.Patch("/v1/monitors/{monitorId}", h.UpdateMonitor)
		r.Post("/v1/monitors/{monitorId}/pause", h.PauseMonitor)
		r.Post("/v1/monitors/{monitorId}/resume", h.ResumeMonitor)
		r.Get("/v1/monitors/{monitorId}/checks", h.ListChecks)
		r.Get("/v1/monitors/{monitorId}/stats", h.GetStats)
		r.Get("/v1/monitors/{monitorId}/response-times", h.GetResponseTimes)
		r.Post("/v1/monitors/{monitorId}/check", h.CheckNow)
	})
	return router, svc, repo
}

func createHTTPMonitor(t *testing.T, router http.Handler, tenantID string) models.Monitor {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/v1/monitors", tenantID, models.MonitorCreateRequest{
		Name:   "Homepage",
		Type:   "HTTP",
		Config: models.MonitorConfig{URL: "https://example.com/health"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Monitor
	decode(t, rec, &created)
	assert.Equal(t, "/v1/monitors/"+created.ID, rec.Header().Get("Location"))
	return created
}

func TestMonitorHandler_CreateGetList(t *testing.T) {
	router, _, _ := monitorRouter(t, nil)
	created := createHTTPMonitor(t, router, "ten_a")

	rec := do(t, router, http.MethodGet, "/v1/monitors/"+created.ID, "ten_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Monitor
	decode(t, rec, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "UP", got.CurrentStatus)

	rec = do(t, router, http.MethodGet, "/v1/monitors", "ten_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.MonitorList
	decode(t, rec, &list)
	assert.Len(t, list.Items, 1)
}

func TestMonitorHandler_TenantIsolation(t *testing.T) {
	router, _, _ := monitorRouter(t, nil)
	created := createHTTPMonitor(t, router, "ten_a")

	rec := do(t, router, http.MethodGet, "/v1/monitors/"+created.ID, "ten_b", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/v1/monitors", "ten_b", nil)
	var list models.MonitorList
	decode(t, rec, &list)
	assert.Empty(t, list.Items)
}

func TestMonitorHandler_CreateValidation(t *testing.T) {
	router, _, _ := monitorRouter(t, nil)

	rec := do(t, router, http.MethodPost, "/v1/monitors", "ten_a", models.MonitorCreateRequest{Type: "FTP"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem models.Problem
	decode(t, rec, &problem)
	assert.NotEmpty(t, problem.Errors)
}

func TestMonitorHandler_RejectsUnknownFields(t *testing.T) {
	router, _, _ := monitorRouter(t, nil)

	rec := do(t, router, http.MethodPost, "/v1/monitors", "ten_a", map[string]interface{}{"name": "x", "bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonitorHandler_UpdatePauseResume(t *testing.T) {
	router, _, _ := monitorRouter(t, nil)
	created := createHTTPMonitor(t, router, "ten_a")

	name := "Renamed"
	rec := do(t, router, http.MethodPatch, "/v1/monitors/"+created.ID, "ten_a", models.MonitorUpdateRequest{Name: &name})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Monitor
	decode(t, rec, &updated)
	assert.Equal(t, "Renamed", updated.Name)

	rec = do(t, router, http.MethodPost, "/v1/monitors/"+created.ID+"/pause", "ten_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var paused models.Monitor
	decode(t, rec, &paused)
	assert.False(t, paused.Enabled)

	rec = do(t, router, http.MethodPost, "/v1/monitors/"+created.ID+"/resume", "ten_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resumed models.Monitor
	decode(t, rec, &resumed)
	assert.True(t, resumed.Enabled)
}

func TestMonitorHandler_HistoryStatsResponseTimes(t *testing.T) {
	router, _, repo := monitorRouter(t, nil)
	created := createHTTPMonitor(t, router, "ten_a")

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.AppendCheck(context.Background(), &monitor.CheckResult{
			ID:           "chk_" + string(rune('a'+i)),
			MonitorID:    created.ID,
			Status:       monitor.StatusUp,
			ResponseTime: 100 + i,
			Region:       "default",
			CheckedAt:    now.Add(-time.Duration(i) * time.Minute),
		}))
	}

	rec := do(t, router, http.MethodGet, "/v1/monitors/"+created.ID+"/checks?limit=2", "ten_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.PagedChecks
	decode(t, rec, &page)
	assert.Len(t, page.Items, 2)

	rec = do(t, router, http.MethodGet, "/v1/monitors/"+created.ID+"/stats?days=7", "ten_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.MonitorStats
	decode(t, rec, &stats)
	assert.Equal(t, created.ID, stats.MonitorID)

	rec = do(t, router, http.MethodGet, "/v1/monitors/"+created.ID+"/response-times?hours=24", "ten_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var series models.ResponseTimeSeries
	decode(t, rec, &series)
	assert.Equal(t, created.ID, series.MonitorID)
}

func TestMonitorHandler_CheckNow(t *testing.T) {
	trigger := &fakeTrigger{}
	router, _, _ := monitorRouter(t, trigger)
	created := createHTTPMonitor(t, router, "ten_a")

	rec := do(t, router, http.MethodPost, "/v1/monitors/"+created.ID+"/check", "ten_a", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var ack models.CheckNowResponse
	decode(t, rec, &ack)
	assert.Equal(t, created.ID, ack.MonitorID)
	assert.True(t, ack.Queued)
	assert.Equal(t, []string{created.ID}, trigger.ids)

	rec = do(t, router, http.MethodPost, "/v1/monitors/"+created.ID+"/check", "ten_b", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, trigger.ids, 1)
}

func TestMonitorHandler_CheckNowInProgress(t *testing.T) {
	router, _, _ := monitorRouter(t, &fakeTrigger{err: scheduler.ErrCheckInProgress})
	created := createHTTPMonitor(t, router, "ten_a")

	rec := do(t, router, http.MethodPost, "/v1/monitors/"+created.ID+"/check", "ten_a", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMonitorHandler_CheckNowWithoutTrigger(t *testing.T) {
	router, _, _ := monitorRouter(t, nil)
	created := createHTTPMonitor(t, router, "ten_a")

	rec := do(t, router, http.MethodPost, "/v1/monitors/"+created.ID+"/check", "ten_a", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMonitorHandler_RequiresAuth(t *testing.T) {
	router, _, _ := monitorRouter(t, nil)

	rec := do(t, router, http.MethodGet, "/v1/monitors", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
