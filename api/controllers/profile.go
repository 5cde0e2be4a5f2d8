package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/internal/profiles"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type ProfileService interface {
	Me(ctx context.Context, userID uuid.UUID) (*profiles.ProfileDTO, error)
}

// Profile returns the signed-in user's profile.
func Profile(svc ProfileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "profile")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		profile, err := svc.Me(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}
