package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	pkgAuth "github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// RoleLookup loads profiles.role for a user.
type RoleLookup interface {
	RoleOf(ctx context.Context, id uuid.UUID) (enums.Role, error)
}

// Auth resolves the session token from the configured cookie (or a bearer
// header), loads the caller's role from the profile row and seeds the request
// context with the resulting actor.
func Auth(cfg config.AuthConfig, roles RoleLookup, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := authenticate(r, cfg, roles)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withActorLogging(r, actor, logg)))
		})
	}
}

// OptionalAuth attaches the actor when a valid session is present and lets
// anonymous callers through otherwise.
func OptionalAuth(cfg config.AuthConfig, roles RoleLookup, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessionToken(r, cfg.CookieName) == "" {
				next.ServeHTTP(w, r)
				return
			}
			actor, err := authenticate(r, cfg, roles)
			if err != nil {
				if logg != nil {
					logg.Debug(r.Context(), "optional auth ignored invalid session")
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withActorLogging(r, actor, logg)))
		})
	}
}

func authenticate(r *http.Request, cfg config.AuthConfig, roles RoleLookup) (pkgAuth.Actor, error) {
	token := sessionToken(r, cfg.CookieName)
	if token == "" {
		return pkgAuth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}

	claims, err := pkgAuth.ParseSessionToken(cfg, token)
	if err != nil {
		return pkgAuth.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid session")
	}
	userID, err := claims.UserID()
	if err != nil {
		return pkgAuth.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid session")
	}

	role, err := roles.RoleOf(r.Context(), userID)
	if err != nil {
		if db.IsNotFound(err) {
			return pkgAuth.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "profile not found")
		}
		return pkgAuth.Actor{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile role")
	}
	return pkgAuth.Actor{UserID: userID, Role: role}, nil
}

func withActorLogging(r *http.Request, actor pkgAuth.Actor, logg *logger.Logger) context.Context {
	ctx := WithActor(r.Context(), actor)
	if logg != nil {
		ctx = logg.WithUserID(ctx, actor.UserID.String())
		ctx = logg.WithRole(ctx, string(actor.Role))
	}
	return ctx
}

func sessionToken(r *http.Request, cookieName string) string {
	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil {
			if v := strings.TrimSpace(cookie.Value); v != "" {
				return v
			}
		}
	}
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return ""
}
