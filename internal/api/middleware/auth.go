package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pulsewatch/pulsewatch/internal/api/models"
	"github.com/pulsewatch/pulsewatch/internal/auth"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type tenantIDKey struct{}
type subjectKey struct{}

// AccessTokenParam is the query parameter accepted on stream routes, where
// browsers cannot set an Authorization header (EventSource, WebSocket).
const AccessTokenParam = "access_token"

// Auth creates authentication middleware that validates JWT bearer tokens
// and scopes the request to the token's tenant.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return authenticate(verifier, false)
}

// StreamAuth is Auth that also accepts the token from the access_token
// query parameter.
func StreamAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return authenticate(verifier, true)
}

func authenticate(verifier TokenVerifier, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, problem := bearerToken(r, allowQuery)
			if problem != "" {
				writeUnauthorized(w, r, problem)
				return
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "access token has expired")
				case errors.Is(err, auth.ErrMissingTenant):
					writeUnauthorized(w, r, "access token is not scoped to a tenant")
				default:
					writeUnauthorized(w, r, "invalid access token")
				}
				return
			}

			if st := stateFrom(r.Context()); st != nil {
				st.tenantID = claims.TenantID
			}
			ctx := context.WithValue(r.Context(), tenantIDKey{}, claims.TenantID)
			ctx = context.WithValue(ctx, subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request, allowQuery bool) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if allowQuery {
			if token := r.URL.Query().Get(AccessTokenParam); token != "" {
				return token, ""
			}
		}
		return "", "missing authorization header"
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) ||
		!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", "invalid authorization header format"
	}

	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// writeUnauthorized is local to avoid an import cycle with the response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetTenantID returns the tenant the request is scoped to, or "".
func GetTenantID(ctx context.Context) string {
	if id, ok := ctx.Value(tenantIDKey{}).(string); ok {
		return id
	}
	if st := stateFrom(ctx); st != nil {
		return st.tenantID
	}
	return ""
}

// GetSubject returns the token subject of an authenticated request.
func GetSubject(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey{}).(string); ok {
		return sub
	}
	return ""
}
