package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Order is created by the checkout system; this service only reads it and
// advances payment and invoice state.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderNumber   string              `gorm:"column:order_number;not null" json:"orderNumber"`
	BuyerID       uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null" json:"buyerId"`
	SellerID      uuid.UUID           `gorm:"column:seller_id;type:uuid;not null" json:"sellerId"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null" json:"status"`
	Currency      string              `gorm:"column:currency;not null" json:"currency"`
	Subtotal      decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null" json:"subtotal"`
	TaxTotal      decimal.Decimal     `gorm:"column:tax_total;type:numeric(12,2);not null" json:"taxTotal"`
	Total         decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null" json:"total"`
	InvoiceID     *uuid.UUID          `gorm:"column:invoice_id;type:uuid" json:"invoiceId,omitempty"`
	InvoiceStatus enums.InvoiceStatus `gorm:"column:invoice_status;type:text;not null" json:"invoiceStatus"`
	PaidAt        *time.Time          `gorm:"column:paid_at" json:"paidAt,omitempty"`
	Items         []OrderItem         `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

type OrderItem struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID     uuid.UUID        `gorm:"column:order_id;type:uuid;not null" json:"orderId"`
	ProductID   *uuid.UUID       `gorm:"column:product_id;type:uuid" json:"productId,omitempty"`
	ProductName string           `gorm:"column:product_name;not null" json:"productName"`
	UnitPrice   decimal.Decimal  `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unitPrice"`
	Quantity    int              `gorm:"column:quantity;not null" json:"quantity"`
	TaxRate     *decimal.Decimal `gorm:"column:tax_rate;type:numeric(5,2)" json:"taxRate,omitempty"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (OrderItem) TableName() string { return "order_items" }
