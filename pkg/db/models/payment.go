package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/bazaar-backend/pkg/db/types"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Payment records one gateway transaction for an order.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID          uuid.UUID           `gorm:"column:order_id;type:uuid;not null" json:"orderId"`
	TransactionID    string              `gorm:"column:transaction_id;not null" json:"transactionId"`
	GatewayPaymentID *string             `gorm:"column:gateway_payment_id" json:"gatewayPaymentId,omitempty"`
	Status           enums.PaymentStatus `gorm:"column:status;type:text;not null" json:"status"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency         string              `gorm:"column:currency;not null" json:"currency"`
	BankResponse     dbtypes.JSON        `gorm:"column:bank_response;type:jsonb" json:"bankResponse,omitempty"`
	FailureReason    *string             `gorm:"column:failure_reason" json:"failureReason,omitempty"`
	CompletedAt      *time.Time          `gorm:"column:completed_at" json:"completedAt,omitempty"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
