package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Profile mirrors the auth provider's user with marketplace attributes.
type Profile struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Email     string     `gorm:"column:email;not null" json:"email"`
	FullName  string     `gorm:"column:full_name" json:"fullName"`
	Phone     *string    `gorm:"column:phone" json:"phone,omitempty"`
	Role      enums.Role `gorm:"column:role;type:text;not null;default:customer" json:"role"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
