package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pulsewatch/pulsewatch/internal/api/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIP(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestLimit: 3,
		WindowLength: time.Minute,
	})(okHandler())

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/heartbeat/tok", http.NoBody)
		req.RemoteAddr = ip + ":12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit("10.0.0.1").Code, "request %d", i+1)
	}

	rec := hit("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, hit("10.0.0.2").Code, "other IPs have their own budget")
}

func TestRateLimitByTenant(t *testing.T) {
	svc, token := newTokens(t)
	other, _, err := svc.Issue("ten_other", "usr_2", time.Hour)
	assert.NoError(t, err)

	handler := middleware.Auth(svc)(middleware.RateLimitByTenant(middleware.RateLimitConfig{
		RequestLimit: 1,
		WindowLength: 30 * time.Second,
	})(okHandler()))

	hit := func(tok, ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/monitors/mon_1/check", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+tok)
		req.RemoteAddr = ip + ":1"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, hit(token, "10.1.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit(token, "10.1.0.2"), "same tenant from another IP")
	assert.Equal(t, http.StatusOK, hit(other, "10.1.0.1"))
}
