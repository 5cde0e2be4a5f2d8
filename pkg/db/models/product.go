package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Product is a seller listing. TaxRate is a percentage; nil means the
// marketplace default applies.
type Product struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SellerID        uuid.UUID            `gorm:"column:seller_id;type:uuid;not null" json:"sellerId"`
	BrandID         *uuid.UUID           `gorm:"column:brand_id;type:uuid" json:"brandId,omitempty"`
	CategoryID      *uuid.UUID           `gorm:"column:category_id;type:uuid" json:"categoryId,omitempty"`
	Name            string               `gorm:"column:name;not null" json:"name"`
	Description     *string              `gorm:"column:description" json:"description,omitempty"`
	Price           decimal.Decimal      `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Currency        string               `gorm:"column:currency;not null" json:"currency"`
	Stock           int                  `gorm:"column:stock;not null" json:"stock"`
	TaxRate         *decimal.Decimal     `gorm:"column:tax_rate;type:numeric(5,2)" json:"taxRate,omitempty"`
	ImageURL        *string              `gorm:"column:image_url" json:"imageUrl,omitempty"`
	IsActive        bool                 `gorm:"column:is_active;not null" json:"isActive"`
	ApprovalStatus  enums.ApprovalStatus `gorm:"column:approval_status;type:text;not null" json:"approvalStatus"`
	RejectionReason *string              `gorm:"column:rejection_reason" json:"rejectionReason,omitempty"`
	ReviewedBy      *uuid.UUID           `gorm:"column:reviewed_by;type:uuid" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time           `gorm:"column:reviewed_at" json:"reviewedAt,omitempty"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
