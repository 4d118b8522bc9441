// internal/acl/middleware.go
//
// Chi middleware helpers that enforce role checks.

package acl

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/keefcreative/designworks/internal/auth"
)

// RequireRole ensures the current actor holds ANY of the supplied roles.
func RequireRole(names ...string) func(http.Handler) http.Handler {
	if len(names) == 0 {
		panic("acl.RequireRole: at least one role name must be supplied")
	}
	allowSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowSet[n] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := auth.ActorFrom(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if _, ok := allowSet[a.Role]; ok {
				next.ServeHTTP(w, r)
				return
			}
			zap.L().Info("acl denied",
				zap.Int64("actor_id", a.ID),
				zap.String("role", a.Role),
				zap.String("path", r.URL.Path))
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}
