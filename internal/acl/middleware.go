// internal/acl/middleware.go
//
// Chi middleware helpers that enforce RBAC.

package acl

import (
	"context"
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/sportcrm/internal/auth"
)

// RoleSource answers role questions for the middleware.  *DBSource is the
// production implementation.
type RoleSource interface {
	UserRoles(ctx context.Context, userID int64) ([]string, error)
	RoleAllowed(ctx context.Context, roles []string, component, action string) (bool, error)
}

// DBSource runs the store queries against one pool.
type DBSource struct{ DB *sql.DB }

func (s DBSource) UserRoles(ctx context.Context, userID int64) ([]string, error) {
	return UserRoles(ctx, s.DB, userID)
}

func (s DBSource) RoleAllowed(ctx context.Context, roles []string, component, action string) (bool, error) {
	return RoleAllowed(ctx, s.DB, roles, component, action)
}

// RequireRole ensures the current user possesses ANY of the supplied roles.
func RequireRole(src RoleSource, names ...string) func(http.Handler) http.Handler {
	if len(names) == 0 {
		panic("acl.RequireRole: at least one role name must be supplied")
	}
	allowSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowSet[n] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok := auth.UserID(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			roles, err := src.UserRoles(r.Context(), uid)
			if err != nil {
				zap.L().Error("acl user roles", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			for _, rname := range roles {
				if _, ok := allowSet[rname]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequirePermission verifies that the user's roles allow component/action.
func RequirePermission(src RoleSource, component, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok := auth.UserID(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			roles, err := src.UserRoles(r.Context(), uid)
			if err != nil {
				zap.L().Error("acl user roles", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			allowed, err := src.RoleAllowed(r.Context(), roles, component, action)
			if err != nil {
				zap.L().Error("acl role allowed", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
