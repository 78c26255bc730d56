package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pulsewatch/pulsewatch/internal/api/middleware"
)

// GetTenantID retrieves the authenticated tenant from the context.
// This is a convenience wrapper around middleware.GetTenantID.
func GetTenantID(ctx context.Context) string {
	return middleware.GetTenantID(ctx)
}

// queryInt parses an optional integer query parameter. Missing or malformed
// values yield 0 so the service applies its default.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}
