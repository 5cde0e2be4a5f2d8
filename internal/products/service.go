package product

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/media"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

var maxTaxRate = decimal.NewFromInt(100)

type imageResolver interface {
	URL(ctx context.Context, raw string, expiry media.Expiry) string
}

// Service exposes the storefront listing, seller CRUD and admin review flows.
type Service struct {
	repo   *Repository
	tx     db.TxRunner
	outbox outbox.Emitter
	images imageResolver
	now    func() time.Time
}

func NewService(repo *Repository, tx db.TxRunner, emitter outbox.Emitter, images imageResolver) (*Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "product repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	return &Service{repo: repo, tx: tx, outbox: emitter, images: images, now: time.Now}, nil
}

func (s *Service) toDTO(ctx context.Context, p *models.Product) ProductDTO {
	image := ""
	if s.images != nil {
		raw := ""
		if p.ImageURL != nil {
			raw = *p.ImageURL
		}
		image = s.images.URL(ctx, raw, media.ExpiryLong)
	} else if p.ImageURL != nil {
		image = *p.ImageURL
	}
	return NewProductDTO(p, image)
}

func (s *Service) list(ctx context.Context, params ListParams) (*pagination.Page[ProductDTO], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, params, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	page := pagination.BuildPage(rows, params.Limit, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	out := &pagination.Page[ProductDTO]{Items: make([]ProductDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for i := range page.Items {
		out.Items = append(out.Items, s.toDTO(ctx, &page.Items[i]))
	}
	return out, nil
}

// ListPublic only returns approved, active listings.
func (s *Service) ListPublic(ctx context.Context, params ListParams) (*pagination.Page[ProductDTO], error) {
	approved := enums.ApprovalApproved
	params.Approval = &approved
	params.ActiveOnly = true
	params.SellerID = nil
	return s.list(ctx, params)
}

func (s *Service) GetPublic(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ApprovalStatus != enums.ApprovalApproved || !p.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	dto := s.toDTO(ctx, p)
	return &dto, nil
}

func (s *Service) ListSeller(ctx context.Context, sellerID uuid.UUID, params ListParams) (*pagination.Page[ProductDTO], error) {
	params.SellerID = &sellerID
	return s.list(ctx, params)
}

func (s *Service) ListPending(ctx context.Context, params ListParams) (*pagination.Page[ProductDTO], error) {
	pending := enums.ApprovalPending
	params.Approval = &pending
	return s.list(ctx, params)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return p, nil
}

// loadOwned returns 404 for missing products and 403 for other sellers' products.
func (s *Service) loadOwned(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Product, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(p.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another seller")
	}
	return p, nil
}

// Create stores a new listing awaiting admin approval.
func (s *Service) Create(ctx context.Context, sellerID uuid.UUID, input CreateProductInput) (*ProductDTO, error) {
	if err := validatePrice(input.Price); err != nil {
		return nil, err
	}
	if err := validateTaxRate(input.TaxRate); err != nil {
		return nil, err
	}
	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	p := &models.Product{
		SellerID:       sellerID,
		BrandID:        input.BrandID,
		CategoryID:     input.CategoryID,
		Name:           strings.TrimSpace(input.Name),
		Description:    input.Description,
		Price:          input.Price.Round(2),
		Currency:       strings.ToUpper(input.Currency),
		Stock:          input.Stock,
		TaxRate:        input.TaxRate,
		ImageURL:       input.ImageURL,
		IsActive:       isActive,
		ApprovalStatus: enums.ApprovalPending,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}
	dto := s.toDTO(ctx, p)
	return &dto, nil
}

// Update edits a listing and sends it back to review.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	if _, err := s.loadOwned(ctx, actor, id); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.BrandID.Set {
		updates["brand_id"] = input.BrandID.Value
	}
	if input.CategoryID.Set {
		updates["category_id"] = input.CategoryID.Value
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Description.Set {
		updates["description"] = input.Description.Value
	}
	if input.Price != nil {
		if err := validatePrice(*input.Price); err != nil {
			return nil, err
		}
		updates["price"] = input.Price.Round(2)
	}
	if input.Currency != nil {
		updates["currency"] = strings.ToUpper(*input.Currency)
	}
	if input.Stock != nil {
		updates["stock"] = *input.Stock
	}
	if input.TaxRate.Set {
		if err := validateTaxRate(input.TaxRate.Value); err != nil {
			return nil, err
		}
		updates["tax_rate"] = input.TaxRate.Value
	}
	if input.ImageURL.Set {
		updates["image_url"] = input.ImageURL.Value
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}
	updates["approval_status"] = enums.ApprovalPending
	updates["rejection_reason"] = nil
	updates["reviewed_by"] = nil
	updates["reviewed_at"] = nil

	p, err := s.repo.Update(ctx, id, updates)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update product")
	}
	dto := s.toDTO(ctx, p)
	return &dto, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if _, err := s.loadOwned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete product")
	}
	return nil
}

func (s *Service) Approve(ctx context.Context, admin auth.Actor, id uuid.UUID) (*ProductDTO, error) {
	return s.review(ctx, admin, id, enums.ApprovalApproved, nil)
}

func (s *Service) Reject(ctx context.Context, admin auth.Actor, id uuid.UUID, reason string) (*ProductDTO, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}
	return s.review(ctx, admin, id, enums.ApprovalRejected, &reason)
}

// review records the decision and queues a product_reviewed event in one transaction.
func (s *Service) review(ctx context.Context, admin auth.Actor, id uuid.UUID, status enums.ApprovalStatus, reason *string) (*ProductDTO, error) {
	if !admin.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	var reviewed *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}
		if current.ApprovalStatus == status {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "product already %s", status)
		}

		now := s.now().UTC()
		updated, err := repo.Update(ctx, id, map[string]any{
			"approval_status":  status,
			"rejection_reason": reason,
			"reviewed_by":      admin.UserID,
			"reviewed_at":      now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update product review")
		}
		reviewed = updated

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductReviewed,
			AggregateType: enums.AggregateProduct,
			AggregateID:   updated.ID,
			Actor:         outbox.ActorFrom(admin),
			Data: payloads.ProductReviewedEvent{
				ProductID:   updated.ID,
				ProductName: updated.Name,
				SellerID:    updated.SellerID,
				Status:      status,
				Reason:      reason,
				ReviewedBy:  admin.UserID,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Ensure(err, pkgerrors.CodeInternal, "review product")
	}
	dto := s.toDTO(ctx, reviewed)
	return &dto, nil
}

func validatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	return nil
}

func validateTaxRate(rate *decimal.Decimal) error {
	if rate == nil {
		return nil
	}
	if rate.IsNegative() || rate.GreaterThan(maxTaxRate) {
		return pkgerrors.New(pkgerrors.CodeValidation, "taxRate must be between 0 and 100")
	}
	return nil
}
