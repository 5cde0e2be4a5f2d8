package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/invoices"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const invoiceIDParam = "id"

type InvoiceService interface {
	Generate(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*invoices.GenerateResult, error)
	Download(ctx context.Context, actor auth.Actor, invoiceID uuid.UUID) (*invoices.DownloadLink, error)
}

type generateInvoiceRequest struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
}

// GenerateInvoice creates (or returns the existing) invoice for an order.
func GenerateInvoice(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "invoice")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var payload generateInvoiceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Generate(r.Context(), actor, payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.AlreadyGenerated {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// DownloadInvoice returns a short lived signed link, or redirects to it when
// ?redirect=true.
func DownloadInvoice(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "invoice")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseURLParamUUID(r, invoiceIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		redirect, err := validators.ParseQueryBool(r, "redirect", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		link, err := svc.Download(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if redirect {
			responses.Redirect(w, r, link.URL)
			return
		}
		responses.WriteSuccess(w, link)
	}
}
