package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/httpx"
)

// Caller identity arrives on trusted headers set by the upstream auth proxy.
const (
	userIDHeader  = "X-User-ID"
	adminIDHeader = "X-Admin-ID"
)

func userIDFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userIDHeader))
}

func adminIDFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(adminIDHeader))
}

// requireUser resolves the caller's user id or writes a 401.
func requireUser(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := userIDFrom(r)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "user identity required", http.StatusUnauthorized))
		return "", false
	}
	return userID, true
}

// requireAdmin resolves the caller's admin id or writes a 401.
func requireAdmin(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	adminID := adminIDFrom(r)
	if adminID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "admin identity required", http.StatusUnauthorized))
		return "", false
	}
	return adminID, true
}
