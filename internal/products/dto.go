package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// ProductDTO is the listing payload. ImageURL is already signed.
type ProductDTO struct {
	ID              uuid.UUID            `json:"id"`
	SellerID        uuid.UUID            `json:"sellerId"`
	BrandID         *uuid.UUID           `json:"brandId,omitempty"`
	CategoryID      *uuid.UUID           `json:"categoryId,omitempty"`
	Name            string               `json:"name"`
	Description     *string              `json:"description,omitempty"`
	Price           decimal.Decimal      `json:"price"`
	Currency        string               `json:"currency"`
	Stock           int                  `json:"stock"`
	TaxRate         *decimal.Decimal     `json:"taxRate,omitempty"`
	ImageURL        string               `json:"imageUrl"`
	IsActive        bool                 `json:"isActive"`
	ApprovalStatus  enums.ApprovalStatus `json:"approvalStatus"`
	RejectionReason *string              `json:"rejectionReason,omitempty"`
	ReviewedAt      *time.Time           `json:"reviewedAt,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// NewProductDTO builds a DTO; imageURL is the resolved image.
func NewProductDTO(p *models.Product, imageURL string) ProductDTO {
	return ProductDTO{
		ID:              p.ID,
		SellerID:        p.SellerID,
		BrandID:         p.BrandID,
		CategoryID:      p.CategoryID,
		Name:            p.Name,
		Description:     p.Description,
		Price:           p.Price,
		Currency:        p.Currency,
		Stock:           p.Stock,
		TaxRate:         p.TaxRate,
		ImageURL:        imageURL,
		IsActive:        p.IsActive,
		ApprovalStatus:  p.ApprovalStatus,
		RejectionReason: p.RejectionReason,
		ReviewedAt:      p.ReviewedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// CreateProductInput is the seller payload for a new listing.
type CreateProductInput struct {
	BrandID     *uuid.UUID       `json:"brandId"`
	CategoryID  *uuid.UUID       `json:"categoryId"`
	Name        string           `json:"name" validate:"required,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=5000"`
	Price       decimal.Decimal  `json:"price"`
	Currency    string           `json:"currency" validate:"required,len=3"`
	Stock       int              `json:"stock" validate:"gte=0"`
	TaxRate     *decimal.Decimal `json:"taxRate"`
	ImageURL    *string          `json:"imageUrl" validate:"omitempty,max=1024"`
	IsActive    *bool            `json:"isActive"`
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	BrandID     types.Nullable[uuid.UUID]       `json:"brandId"`
	CategoryID  types.Nullable[uuid.UUID]       `json:"categoryId"`
	Name        *string                         `json:"name" validate:"omitempty,max=200"`
	Description types.Nullable[string]          `json:"description"`
	Price       *decimal.Decimal                `json:"price"`
	Currency    *string                         `json:"currency" validate:"omitempty,len=3"`
	Stock       *int                            `json:"stock" validate:"omitempty,gte=0"`
	TaxRate     types.Nullable[decimal.Decimal] `json:"taxRate"`
	ImageURL    types.Nullable[string]          `json:"imageUrl"`
	IsActive    *bool                           `json:"isActive"`
}

// ListParams filters a product listing.
type ListParams struct {
	SellerID   *uuid.UUID
	BrandID    *uuid.UUID
	CategoryID *uuid.UUID
	Approval   *enums.ApprovalStatus
	ActiveOnly bool
	Search     string
	Limit      int
	Cursor     string
}

// RejectInput carries the admin's reason.
type RejectInput struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}
