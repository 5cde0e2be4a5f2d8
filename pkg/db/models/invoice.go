package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/bazaar-backend/pkg/db/types"
)

// Invoice is the persisted result of a successful generation for an order.
// Lines holds the computed invoice lines as JSON.
type Invoice struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null" json:"orderId"`
	InvoiceNumber string          `gorm:"column:invoice_number;not null" json:"invoiceNumber"`
	Status        string          `gorm:"column:status;not null" json:"status"`
	Currency      string          `gorm:"column:currency;not null" json:"currency"`
	Subtotal      decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null" json:"subtotal"`
	TaxTotal      decimal.Decimal `gorm:"column:tax_total;type:numeric(12,2);not null" json:"taxTotal"`
	Total         decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null" json:"total"`
	StorageKey    string          `gorm:"column:storage_key;not null" json:"-"`
	Lines         dbtypes.JSON    `gorm:"column:lines;type:jsonb;not null" json:"lines"`
	IssuedAt      time.Time       `gorm:"column:issued_at;not null" json:"issuedAt"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
