package models

import (
	"time"

	"github.com/google/uuid"
)

// CardToken references a card tokenized by the payment gateway. Only the
// gateway token is stored, never the PAN.
type CardToken struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null" json:"userId"`
	GatewayToken string    `gorm:"column:gateway_token;not null" json:"-"`
	Brand        string    `gorm:"column:brand;not null" json:"brand"`
	Last4        string    `gorm:"column:last4;not null" json:"last4"`
	HolderName   string    `gorm:"column:holder_name;not null" json:"holderName"`
	ExpiryMonth  int       `gorm:"column:expiry_month;not null" json:"expiryMonth"`
	ExpiryYear   int       `gorm:"column:expiry_year;not null" json:"expiryYear"`
	Alias        *string   `gorm:"column:alias" json:"alias,omitempty"`
	IsDefault    bool      `gorm:"column:is_default;not null" json:"isDefault"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// CardEditVerification is a one-time emailed code guarding card edits.
type CardEditVerification struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null"`
	CardID    uuid.UUID  `gorm:"column:card_id;type:uuid;not null"`
	CodeHash  string     `gorm:"column:code_hash;not null"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null"`
	Used      bool       `gorm:"column:used;not null"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
