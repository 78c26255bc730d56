package response_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/api/middleware"
	"github.com/pulsewatch/pulsewatch/internal/api/models"
	"github.com/pulsewatch/pulsewatch/internal/api/response"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// serve runs fn behind the RequestID middleware so the context carries an id.
func serve(t *testing.T, req *http.Request, fn http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	middleware.RequestID(fn).ServeHTTP(rec, req)
	return rec
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/monitors", http.NoBody)
	req.Header.Set(middleware.RequestIDHeader, "req_fixed")

	rec := serve(t, req, func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "UP"})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req_fixed", rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"UP"}`, rec.Body.String())
}

func TestCreated(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/monitors", http.NoBody)
	rec := serve(t, req, func(w http.ResponseWriter, r *http.Request) {
		response.Created(w, r, "/v1/monitors/mon_1", map[string]string{"id": "mon_1"})
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/v1/monitors/mon_1", rec.Header().Get("Location"))
}

func TestNoContent(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/x", http.NoBody)
	rec := serve(t, req, func(w http.ResponseWriter, r *http.Request) {
		response.NoContent(w, r)
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Empty(t, rec.Body.String())
}

func TestDecode(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	decode := func(body string) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return response.Decode(httptest.NewRecorder(), req, &dst)
	}

	require.NoError(t, decode(`{"name":"API"}`))
	assert.Equal(t, "API", dst.Name)

	assert.ErrorContains(t, decode(``), "empty")
	assert.ErrorContains(t, decode(`{"name":`), "invalid JSON")
	assert.ErrorContains(t, decode(`{"nmae":"typo"}`), "unknown field")
	assert.Error(t, decode(`{"name":"`+strings.Repeat("a", response.MaxBodyBytes)+`"}`))
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"validation", &monitor.ValidationError{Errors: []models.FieldError{{Field: "name", Message: "is required"}}},
			http.StatusBadRequest, models.ProblemTypeValidation},
		{"wrapped not found", fmt.Errorf("load: %w", monitor.ErrMonitorNotFound), http.StatusNotFound, models.ProblemTypeNotFound},
		{"not heartbeat", monitor.ErrNotHeartbeat, http.StatusBadRequest, models.ProblemTypeValidation},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, models.ProblemTypeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/monitors/mon_1", http.NoBody)
			rec := serve(t, req, func(w http.ResponseWriter, r *http.Request) {
				response.FromError(w, r, tt.err)
			})

			assert.Equal(t, tt.status, rec.Code)
			var problem models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.typ, problem.Type)
			assert.Equal(t, "/v1/monitors/mon_1", problem.Instance)
			assert.NotContains(t, problem.Detail, "connection reset")
		})
	}
}
