package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

const orderIDParam = "id"

type orderLister func(ctx context.Context, userID uuid.UUID, params orders.ListParams) (*pagination.Page[models.Order], error)

func orderListParams(r *http.Request) (orders.ListParams, error) {
	page, err := pageParams(r)
	if err != nil {
		return orders.ListParams{}, err
	}
	params := orders.ListParams{Limit: page.Limit, Cursor: page.Cursor}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return orders.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]any{"field": "status"})
		}
		params.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("invoiceStatus")); raw != "" {
		status, err := enums.ParseInvoiceStatus(raw)
		if err != nil {
			return orders.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoiceStatus").WithDetails(map[string]any{"field": "invoiceStatus"})
		}
		params.InvoiceStatus = &status
	}
	return params, nil
}

func listOrders(svc orders.Service, logg *logger.Logger, pick func(orders.Service) orderLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "orders")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		params, err := orderListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := pick(svc)(r.Context(), actor.UserID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// ListOrders returns the caller's purchases.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return listOrders(svc, logg, func(s orders.Service) orderLister { return s.ListForBuyer })
}

// SellerListOrders returns orders placed against the caller's products.
func SellerListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return listOrders(svc, logg, func(s orders.Service) orderLister { return s.ListForSeller })
}

// GetOrder is visible to the buyer, the seller and admins.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "orders")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseURLParamUUID(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
