package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/api/middleware"
	"github.com/pulsewatch/pulsewatch/internal/api/models"
	"github.com/pulsewatch/pulsewatch/internal/auth"
)

func newTokens(t *testing.T) (*auth.TokenService, string) {
	t.Helper()
	svc := auth.NewTokenService(auth.TokenConfig{SigningKey: "middleware-test-key"})
	token, _, err := svc.Issue("ten_acme", "usr_1", time.Hour)
	require.NoError(t, err)
	return svc, token
}

func tenantEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(middleware.GetTenantID(r.Context()) + "/" + middleware.GetSubject(r.Context())))
	})
}

func TestAuth_ValidToken(t *testing.T) {
	svc, token := newTokens(t)
	handler := middleware.Auth(svc)(tenantEcho())

	req := httptest.NewRequest(http.MethodGet, "/v1/monitors", http.NoBody)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ten_acme/usr_1", rec.Body.String())
}

func TestAuth_Rejections(t *testing.T) {
	svc, _ := newTokens(t)
	expiredSvc := auth.NewTokenService(auth.TokenConfig{
		SigningKey: "middleware-test-key",
		Now:        func() time.Time { return time.Now().Add(-2 * time.Hour) },
	})
	expired, _, err := expiredSvc.Issue("ten_acme", "usr_1", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		detail string
	}{
		{"missing header", "", "missing authorization header"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty token", "Bearer   ", "missing bearer token"},
		{"garbage", "Bearer not-a-jwt", "invalid access token"},
		{"expired", "Bearer " + expired, "access token has expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/monitors", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			middleware.Auth(svc)(tenantEcho()).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var problem models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.detail, problem.Detail)
			assert.Equal(t, "/v1/monitors", problem.Instance)
		})
	}
}

func TestAuth_QueryTokenOnlyOnStreams(t *testing.T) {
	svc, token := newTokens(t)
	target := "/v1/stream?" + middleware.AccessTokenParam + "=" + token

	rec := httptest.NewRecorder()
	middleware.Auth(svc)(tenantEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	middleware.StreamAuth(svc)(tenantEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ten_acme/usr_1", rec.Body.String())
}

func TestGetTenantID_VisibleToOuterMiddleware(t *testing.T) {
	svc, token := newTokens(t)

	var seen string
	outer := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			seen = middleware.GetTenantID(r.Context())
		})
	}
	handler := middleware.RequestID(outer(middleware.Auth(svc)(tenantEcho())))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "ten_acme", seen)
}
