package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/cards"
	"github.com/angelmondragon/bazaar-backend/internal/verification"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const cardIDParam = "cardId"

// CodeService issues and checks card verification codes.
type CodeService interface {
	RequestCode(ctx context.Context, userID, cardID uuid.UUID) (*verification.RequestResult, error)
	Check(ctx context.Context, userID, cardID uuid.UUID, code string) error
}

type confirmCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func ListCards(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cards")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		list, err := svc.List(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AddCard(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cards")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var payload cards.AddCardInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		card, err := svc.Add(r.Context(), actor.UserID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, card)
	}
}

// DeleteCard removes one of the caller's cards. Other users' cards answer 403.
func DeleteCard(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cards")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		cardID, err := validators.ParseURLParamUUID(r, cardIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), actor.UserID, cardID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": cardID, "deleted": true})
	}
}

func SetDefaultCard(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cards")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		cardID, err := validators.ParseURLParamUUID(r, cardIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		card, err := svc.SetDefault(r.Context(), actor.UserID, cardID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, card)
	}
}

// EditCard updates card metadata and consumes the supplied verification code.
func EditCard(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cards")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		cardID, err := validators.ParseURLParamUUID(r, cardIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cards.EditCardInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		card, err := svc.Edit(r.Context(), actor.UserID, cardID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, card)
	}
}

// RequestCardCode emails a fresh verification code for the card.
func RequestCardCode(svc CodeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "verification")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		cardID, err := validators.ParseURLParamUUID(r, cardIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RequestCode(r.Context(), actor.UserID, cardID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

// ConfirmCardCode checks a code without consuming it; the edit consumes it.
func ConfirmCardCode(svc CodeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "verification")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		cardID, err := validators.ParseURLParamUUID(r, cardIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload confirmCodeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Check(r.Context(), actor.UserID, cardID, payload.Code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"verified": true})
	}
}
