package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Service exposes read access to orders for buyers, sellers and admins.
type Service interface {
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params ListParams) (*pagination.Page[models.Order], error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID, params ListParams) (*pagination.Page[models.Order], error)
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Order, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params ListParams) (*pagination.Page[models.Order], error) {
	return s.list(ctx, ListFilters{BuyerID: &buyerID, Status: params.Status, InvoiceStatus: params.InvoiceStatus}, params)
}

func (s *service) ListForSeller(ctx context.Context, sellerID uuid.UUID, params ListParams) (*pagination.Page[models.Order], error) {
	return s.list(ctx, ListFilters{SellerID: &sellerID, Status: params.Status, InvoiceStatus: params.InvoiceStatus}, params)
}

func (s *service) list(ctx context.Context, filters ListFilters, params ListParams) (*pagination.Page[models.Order], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filters, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	page := pagination.BuildPage(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &page, nil
}

// Get returns an order with items to its buyer, its seller or an admin.
func (s *service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindWithItems(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !CanView(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

// CanView reports whether actor is a party to the order or an admin.
func CanView(actor auth.Actor, order *models.Order) bool {
	return actor.IsAdmin() || order.BuyerID == actor.UserID || order.SellerID == actor.UserID
}
