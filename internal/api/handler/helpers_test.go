package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/api/middleware"
	"github.com/pulsewatch/pulsewatch/internal/auth"
)

const signingKey = "handler-test-key"

func tokenService(t *testing.T) *auth.TokenService {
	t.Helper()
	return auth.NewTokenService(auth.TokenConfig{SigningKey: signingKey})
}

func bearer(t *testing.T, tenantID string) string {
	t.Helper()
	token, _, err := tokenService(t).Issue(tenantID, "usr_1", 0)
	require.NoError(t, err)
	return "Bearer " + token
}

// authed returns a router whose routes see tenant claims.
func authed(t *testing.T, register func(r chi.Router)) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(tokenService(t)))
		register(r)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, tenantID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenantID != "" {
		req.Header.Set("Authorization", bearer(t, tenantID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}
