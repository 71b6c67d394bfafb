package auth

import (
	"net/http"
	"strings"

	"github.com/likelion/yourside/internal/platform/api"
	"github.com/likelion/yourside/internal/platform/httpserver"
)

const RoleAdmin = "admin"

// RequireRole lets a request through only when RequireUser already put the
// given role into its context. Role names compare case-insensitively.
func RequireRole(role string) func(next http.Handler) http.Handler {
	want := strings.ToLower(strings.TrimSpace(role))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ := RoleFromContext(r.Context())
			if strings.ToLower(strings.TrimSpace(got)) != want {
				api.Forbidden(w, "FORBIDDEN", "role "+want+" required", httpserver.RequestIDFromContext(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireRole(RoleAdmin).
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(RoleAdmin)(next)
}
