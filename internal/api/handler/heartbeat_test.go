package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/api/handler"
	"github.com/pulsewatch/pulsewatch/internal/api/models"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

func heartbeatRouter(t *testing.T) (http.Handler, *monitor.Service, *monitor.InMemoryRepository) {
	t.Helper()
	repo := monitor.NewInMemoryRepository()
	svc := monitor.NewService(repo)
	h := handler.NewHeartbeatHandler(svc, zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/heartbeat/{token}", h.RecordHeartbeat)
	r.Post("/heartbeat/{token}", h.RecordHeartbeat)
	return r, svc, repo
}

func TestHeartbeatHandler_Records(t *testing.T) {
	router, svc, repo := heartbeatRouter(t)

	created, err := svc.Create(context.Background(), "ten_a", &models.MonitorCreateRequest{
		Name:   "Nightly backup",
		Type:   "HEARTBEAT",
		Config: models.MonitorConfig{GracePeriod: 300},
	})
	require.NoError(t, err)
	require.NotNil(t, created.HeartbeatToken)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, "/heartbeat/"+*created.HeartbeatToken, nil))
		require.Equal(t, http.StatusOK, rec.Code, method)

		var ack models.HeartbeatAck
		decode(t, rec, &ack)
		assert.True(t, ack.OK)
		assert.False(t, ack.ReceivedAt.Time().IsZero())
	}

	stored, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastHeartbeatAt)
}

func TestHeartbeatHandler_UnknownToken(t *testing.T) {
	router, _, _ := heartbeatRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/heartbeat/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
