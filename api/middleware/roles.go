package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// RequireRole runs after Auth and admits only the listed profile roles.
func RequireRole(logg *logger.Logger, roles ...enums.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error
			switch actor, ok := ActorFromContext(r.Context()); {
			case !ok:
				err = pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
			case !slices.Contains(roles, actor.Role):
				err = pkgerrors.Newf(pkgerrors.CodeForbidden, "role %s not allowed", actor.Role)
			default:
				next.ServeHTTP(w, r)
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
		})
	}
}
