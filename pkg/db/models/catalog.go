package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

type Brand struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Slug      string    `gorm:"column:slug;not null" json:"slug"`
	LogoURL   *string   `gorm:"column:logo_url" json:"logoUrl,omitempty"`
	IsActive  bool      `gorm:"column:is_active;not null" json:"isActive"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

type Category struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ParentID  *uuid.UUID `gorm:"column:parent_id;type:uuid" json:"parentId,omitempty"`
	Name      string     `gorm:"column:name;not null" json:"name"`
	Slug      string     `gorm:"column:slug;not null" json:"slug"`
	IsActive  bool       `gorm:"column:is_active;not null" json:"isActive"`
	SortOrder int        `gorm:"column:sort_order;not null" json:"sortOrder"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Announcement is a banner shown to a subset of roles within a time window.
type Announcement struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Title     string         `gorm:"column:title;not null" json:"title"`
	Body      string         `gorm:"column:body;not null" json:"body"`
	Audience  enums.Audience `gorm:"column:audience;type:text;not null" json:"audience"`
	IsActive  bool           `gorm:"column:is_active;not null" json:"isActive"`
	StartsAt  *time.Time     `gorm:"column:starts_at" json:"startsAt,omitempty"`
	EndsAt    *time.Time     `gorm:"column:ends_at" json:"endsAt,omitempty"`
	CreatedBy *uuid.UUID     `gorm:"column:created_by;type:uuid" json:"createdBy,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

type Bank struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Code      string    `gorm:"column:code;not null" json:"code"`
	LogoURL   *string   `gorm:"column:logo_url" json:"logoUrl,omitempty"`
	IsActive  bool      `gorm:"column:is_active;not null" json:"isActive"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// ManagedBankAccount is a marketplace-owned account buyers can pay into.
type ManagedBankAccount struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	BankID        uuid.UUID `gorm:"column:bank_id;type:uuid;not null" json:"bankId"`
	AccountHolder string    `gorm:"column:account_holder;not null" json:"accountHolder"`
	IBAN          string    `gorm:"column:iban;not null" json:"iban"`
	Branch        *string   `gorm:"column:branch" json:"branch,omitempty"`
	Description   *string   `gorm:"column:description" json:"description,omitempty"`
	IsActive      bool      `gorm:"column:is_active;not null" json:"isActive"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (ManagedBankAccount) TableName() string { return "managed_bank_accounts" }
