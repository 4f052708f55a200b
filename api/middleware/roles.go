package middleware

import (
	"net/http"

	"github.com/carzavenue/backend/api/responses"
	"github.com/carzavenue/backend/pkg/enums"
	pkgerrors "github.com/carzavenue/backend/pkg/errors"
	"github.com/carzavenue/backend/pkg/logger"
)

// RequireRole admits callers holding any of the listed roles.
func RequireRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	allowed := make(map[enums.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStaff admits ADMIN and ADMINISTRATOR callers.
func RequireStaff(logg *logger.Logger) func(http.Handler) http.Handler {
	return RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleAdministrator)
}
