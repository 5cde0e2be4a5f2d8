package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// OrderPaidEvent is emitted once a gateway payment completes and the order is paid.
type OrderPaidEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	PaymentID   uuid.UUID       `json:"payment_id"`
	BuyerID     uuid.UUID       `json:"buyer_id"`
	SellerID    uuid.UUID       `json:"seller_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

// PaymentFailedEvent is emitted when the bank or the gateway rejects a payment.
type PaymentFailedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	PaymentID   uuid.UUID `json:"payment_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	Reason      string    `json:"reason"`
}

// InvoiceGeneratedEvent is emitted after the invoice row and PDF are stored.
type InvoiceGeneratedEvent struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	SellerID      uuid.UUID       `json:"seller_id"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
}

// ProductReviewedEvent carries an admin approval decision back to the seller.
type ProductReviewedEvent struct {
	ProductID   uuid.UUID            `json:"product_id"`
	ProductName string               `json:"product_name"`
	SellerID    uuid.UUID            `json:"seller_id"`
	Status      enums.ApprovalStatus `json:"status"`
	Reason      *string              `json:"reason,omitempty"`
	ReviewedBy  uuid.UUID            `json:"reviewed_by"`
}

// NotificationRequestedEvent fans an admin broadcast out to its recipients.
type NotificationRequestedEvent struct {
	Recipients []uuid.UUID            `json:"recipients,omitempty"`
	Audience   enums.Audience         `json:"audience,omitempty"`
	Type       enums.NotificationType `json:"type"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Link       *string                `json:"link,omitempty"`
}
