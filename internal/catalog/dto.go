package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

type BrandInput struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Slug     string  `json:"slug" validate:"required,max=120"`
	LogoURL  *string `json:"logoUrl" validate:"omitempty,max=1024"`
	IsActive *bool   `json:"isActive"`
}

type BrandPatch struct {
	Name     *string                `json:"name" validate:"omitempty,max=120"`
	Slug     *string                `json:"slug" validate:"omitempty,max=120"`
	LogoURL  types.Nullable[string] `json:"logoUrl"`
	IsActive *bool                  `json:"isActive"`
}

type CategoryInput struct {
	ParentID  *uuid.UUID `json:"parentId"`
	Name      string     `json:"name" validate:"required,max=120"`
	Slug      string     `json:"slug" validate:"required,max=120"`
	SortOrder int        `json:"sortOrder"`
	IsActive  *bool      `json:"isActive"`
}

type CategoryPatch struct {
	ParentID  types.Nullable[uuid.UUID] `json:"parentId"`
	Name      *string                   `json:"name" validate:"omitempty,max=120"`
	Slug      *string                   `json:"slug" validate:"omitempty,max=120"`
	SortOrder *int                      `json:"sortOrder"`
	IsActive  *bool                     `json:"isActive"`
}

type AnnouncementInput struct {
	Title    string         `json:"title" validate:"required,max=200"`
	Body     string         `json:"body" validate:"required"`
	Audience enums.Audience `json:"audience" validate:"omitempty,oneof=all customer seller"`
	IsActive *bool          `json:"isActive"`
	StartsAt *time.Time     `json:"startsAt"`
	EndsAt   *time.Time     `json:"endsAt"`
}

type AnnouncementPatch struct {
	Title    *string                   `json:"title" validate:"omitempty,max=200"`
	Body     *string                   `json:"body"`
	Audience *enums.Audience           `json:"audience" validate:"omitempty,oneof=all customer seller"`
	IsActive *bool                     `json:"isActive"`
	StartsAt types.Nullable[time.Time] `json:"startsAt"`
	EndsAt   types.Nullable[time.Time] `json:"endsAt"`
}

type BankInput struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Code     string  `json:"code" validate:"required,max=32"`
	LogoURL  *string `json:"logoUrl" validate:"omitempty,max=1024"`
	IsActive *bool   `json:"isActive"`
}

type BankPatch struct {
	Name     *string                `json:"name" validate:"omitempty,max=120"`
	Code     *string                `json:"code" validate:"omitempty,max=32"`
	LogoURL  types.Nullable[string] `json:"logoUrl"`
	IsActive *bool                  `json:"isActive"`
}

type BankAccountInput struct {
	BankID        uuid.UUID `json:"bankId" validate:"required"`
	AccountHolder string    `json:"accountHolder" validate:"required,max=200"`
	IBAN          string    `json:"iban" validate:"required,iban"`
	Branch        *string   `json:"branch" validate:"omitempty,max=120"`
	Description   *string   `json:"description" validate:"omitempty,max=500"`
	IsActive      *bool     `json:"isActive"`
}

type BankAccountPatch struct {
	AccountHolder *string                `json:"accountHolder" validate:"omitempty,max=200"`
	IBAN          *string                `json:"iban" validate:"omitempty,iban"`
	Branch        types.Nullable[string] `json:"branch"`
	Description   types.Nullable[string] `json:"description"`
	IsActive      *bool                  `json:"isActive"`
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// patchSet collects column updates from optional fields.
type patchSet map[string]any

func setPtr[T any](p patchSet, col string, v *T) {
	if v != nil {
		p[col] = *v
	}
}

func setNullable[T any](p patchSet, col string, v types.Nullable[T]) {
	if !v.Set {
		return
	}
	if v.Value == nil {
		p[col] = nil
		return
	}
	p[col] = *v.Value
}
