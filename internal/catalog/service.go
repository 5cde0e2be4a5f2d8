package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/repo"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// Service manages the admin-maintained reference tables: brands, categories,
// announcements, banks and managed bank accounts.
type Service struct {
	brands        *repo.Table[models.Brand]
	categories    *repo.Table[models.Category]
	announcements *repo.Table[models.Announcement]
	banks         *repo.Table[models.Bank]
	accounts      *repo.Table[models.ManagedBankAccount]
	now           func() time.Time
}

func NewService(conn *gorm.DB) (*Service, error) {
	if conn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database required")
	}
	return &Service{
		brands:        repo.NewTable[models.Brand](conn, "name", "slug", "is_active"),
		categories:    repo.NewTable[models.Category](conn, "parent_id", "name", "slug", "is_active", "sort_order"),
		announcements: repo.NewTable[models.Announcement](conn, "audience", "is_active", "starts_at"),
		banks:         repo.NewTable[models.Bank](conn, "name", "code", "is_active"),
		accounts:      repo.NewTable[models.ManagedBankAccount](conn, "bank_id", "is_active"),
		now:           time.Now,
	}, nil
}

func activeFilter(activeOnly bool) []repo.Filter {
	if !activeOnly {
		return nil
	}
	return []repo.Filter{{Column: "is_active", Value: true}}
}

// mapErr converts repository errors into API errors for the named resource.
func mapErr(err error, resource, action string) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s not found", resource)
	case db.IsUniqueViolation(err, ""):
		return pkgerrors.Newf(pkgerrors.CodeConflict, "%s already exists", resource)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action+" "+resource)
	}
}

func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// Brands

func (s *Service) ListBrands(ctx context.Context, activeOnly bool) ([]models.Brand, error) {
	rows, err := s.brands.List(ctx, repo.ListOptions{Filters: activeFilter(activeOnly), OrderBy: "name"})
	return rows, mapErr(err, "brand", "list")
}

func (s *Service) CreateBrand(ctx context.Context, in BrandInput) (*models.Brand, error) {
	brand := &models.Brand{
		Name:     strings.TrimSpace(in.Name),
		Slug:     normalizeSlug(in.Slug),
		LogoURL:  in.LogoURL,
		IsActive: boolOr(in.IsActive, true),
	}
	if err := s.brands.Create(ctx, brand); err != nil {
		return nil, mapErr(err, "brand", "create")
	}
	return brand, nil
}

func (s *Service) UpdateBrand(ctx context.Context, id uuid.UUID, in BrandPatch) (*models.Brand, error) {
	updates := patchSet{}
	setPtr(updates, "name", in.Name)
	if in.Slug != nil {
		updates["slug"] = normalizeSlug(*in.Slug)
	}
	setNullable(updates, "logo_url", in.LogoURL)
	setPtr(updates, "is_active", in.IsActive)
	row, err := s.brands.Update(ctx, id, updates)
	return row, mapErr(err, "brand", "update")
}

func (s *Service) DeleteBrand(ctx context.Context, id uuid.UUID) error {
	return mapErr(s.brands.Delete(ctx, id), "brand", "delete")
}

// Categories

func (s *Service) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	rows, err := s.categories.List(ctx, repo.ListOptions{Filters: activeFilter(activeOnly), OrderBy: "sort_order"})
	return rows, mapErr(err, "category", "list")
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	if in.ParentID != nil {
		if _, err := s.categories.Get(ctx, *in.ParentID); err != nil {
			if db.IsNotFound(err) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "parent category not found")
			}
			return nil, mapErr(err, "category", "load")
		}
	}
	category := &models.Category{
		ParentID:  in.ParentID,
		Name:      strings.TrimSpace(in.Name),
		Slug:      normalizeSlug(in.Slug),
		SortOrder: in.SortOrder,
		IsActive:  boolOr(in.IsActive, true),
	}
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, mapErr(err, "category", "create")
	}
	return category, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id uuid.UUID, in CategoryPatch) (*models.Category, error) {
	if in.ParentID.Value != nil && *in.ParentID.Value == id {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category cannot be its own parent")
	}
	updates := patchSet{}
	setNullable(updates, "parent_id", in.ParentID)
	setPtr(updates, "name", in.Name)
	if in.Slug != nil {
		updates["slug"] = normalizeSlug(*in.Slug)
	}
	setPtr(updates, "sort_order", in.SortOrder)
	setPtr(updates, "is_active", in.IsActive)
	row, err := s.categories.Update(ctx, id, updates)
	return row, mapErr(err, "category", "update")
}

func (s *Service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return mapErr(s.categories.Delete(ctx, id), "category", "delete")
}

// Announcements

// ListVisibleAnnouncements returns active announcements inside their window
// whose audience includes role. An empty role means an anonymous caller,
// which only sees audience "all".
func (s *Service) ListVisibleAnnouncements(ctx context.Context, role enums.Role) ([]models.Announcement, error) {
	rows, err := s.announcements.List(ctx, repo.ListOptions{Filters: activeFilter(true), OrderBy: "created_at", Desc: true})
	if err != nil {
		return nil, mapErr(err, "announcement", "list")
	}
	now := s.now().UTC()
	visible := make([]models.Announcement, 0, len(rows))
	for _, a := range rows {
		if a.StartsAt != nil && now.Before(*a.StartsAt) {
			continue
		}
		if a.EndsAt != nil && !now.Before(*a.EndsAt) {
			continue
		}
		if role == "" && a.Audience != enums.AudienceAll {
			continue
		}
		if role != "" && !a.Audience.Includes(role) {
			continue
		}
		visible = append(visible, a)
	}
	return visible, nil
}

func (s *Service) ListAnnouncements(ctx context.Context) ([]models.Announcement, error) {
	rows, err := s.announcements.List(ctx, repo.ListOptions{OrderBy: "created_at", Desc: true})
	return rows, mapErr(err, "announcement", "list")
}

func (s *Service) CreateAnnouncement(ctx context.Context, createdBy uuid.UUID, in AnnouncementInput) (*models.Announcement, error) {
	if err := validateWindow(in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}
	audience := in.Audience
	if audience == "" {
		audience = enums.AudienceAll
	}
	announcement := &models.Announcement{
		Title:    strings.TrimSpace(in.Title),
		Body:     in.Body,
		Audience: audience,
		IsActive: boolOr(in.IsActive, true),
		StartsAt: in.StartsAt,
		EndsAt:   in.EndsAt,
	}
	if createdBy != uuid.Nil {
		announcement.CreatedBy = &createdBy
	}
	if err := s.announcements.Create(ctx, announcement); err != nil {
		return nil, mapErr(err, "announcement", "create")
	}
	return announcement, nil
}

func (s *Service) UpdateAnnouncement(ctx context.Context, id uuid.UUID, in AnnouncementPatch) (*models.Announcement, error) {
	current, err := s.announcements.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err, "announcement", "load")
	}
	startsAt, endsAt := current.StartsAt, current.EndsAt
	if in.StartsAt.Set {
		startsAt = in.StartsAt.Value
	}
	if in.EndsAt.Set {
		endsAt = in.EndsAt.Value
	}
	if err := validateWindow(startsAt, endsAt); err != nil {
		return nil, err
	}

	updates := patchSet{}
	setPtr(updates, "title", in.Title)
	setPtr(updates, "body", in.Body)
	setPtr(updates, "audience", in.Audience)
	setPtr(updates, "is_active", in.IsActive)
	setNullable(updates, "starts_at", in.StartsAt)
	setNullable(updates, "ends_at", in.EndsAt)
	row, err := s.announcements.Update(ctx, id, updates)
	return row, mapErr(err, "announcement", "update")
}

func (s *Service) DeleteAnnouncement(ctx context.Context, id uuid.UUID) error {
	return mapErr(s.announcements.Delete(ctx, id), "announcement", "delete")
}

func validateWindow(startsAt, endsAt *time.Time) error {
	if startsAt != nil && endsAt != nil && !endsAt.After(*startsAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "endsAt must be after startsAt")
	}
	return nil
}

// Banks

func (s *Service) ListBanks(ctx context.Context, activeOnly bool) ([]models.Bank, error) {
	rows, err := s.banks.List(ctx, repo.ListOptions{Filters: activeFilter(activeOnly), OrderBy: "name"})
	return rows, mapErr(err, "bank", "list")
}

func (s *Service) CreateBank(ctx context.Context, in BankInput) (*models.Bank, error) {
	bank := &models.Bank{
		Name:     strings.TrimSpace(in.Name),
		Code:     strings.ToUpper(strings.TrimSpace(in.Code)),
		LogoURL:  in.LogoURL,
		IsActive: boolOr(in.IsActive, true),
	}
	if err := s.banks.Create(ctx, bank); err != nil {
		return nil, mapErr(err, "bank", "create")
	}
	return bank, nil
}

func (s *Service) UpdateBank(ctx context.Context, id uuid.UUID, in BankPatch) (*models.Bank, error) {
	updates := patchSet{}
	setPtr(updates, "name", in.Name)
	if in.Code != nil {
		updates["code"] = strings.ToUpper(strings.TrimSpace(*in.Code))
	}
	setNullable(updates, "logo_url", in.LogoURL)
	setPtr(updates, "is_active", in.IsActive)
	row, err := s.banks.Update(ctx, id, updates)
	return row, mapErr(err, "bank", "update")
}

func (s *Service) DeleteBank(ctx context.Context, id uuid.UUID) error {
	accounts, err := s.accounts.List(ctx, repo.ListOptions{Filters: []repo.Filter{{Column: "bank_id", Value: id}}, Limit: 1})
	if err != nil {
		return mapErr(err, "bank account", "list")
	}
	if len(accounts) > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "bank still has managed accounts")
	}
	return mapErr(s.banks.Delete(ctx, id), "bank", "delete")
}

// Managed bank accounts

func (s *Service) ListBankAccounts(ctx context.Context, activeOnly bool) ([]models.ManagedBankAccount, error) {
	rows, err := s.accounts.List(ctx, repo.ListOptions{Filters: activeFilter(activeOnly)})
	return rows, mapErr(err, "bank account", "list")
}

func (s *Service) CreateBankAccount(ctx context.Context, in BankAccountInput) (*models.ManagedBankAccount, error) {
	if _, err := s.banks.Get(ctx, in.BankID); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank not found")
		}
		return nil, mapErr(err, "bank", "load")
	}
	account := &models.ManagedBankAccount{
		BankID:        in.BankID,
		AccountHolder: strings.TrimSpace(in.AccountHolder),
		IBAN:          normalizeIBAN(in.IBAN),
		Branch:        in.Branch,
		Description:   in.Description,
		IsActive:      boolOr(in.IsActive, true),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, mapErr(err, "bank account", "create")
	}
	return account, nil
}

func (s *Service) UpdateBankAccount(ctx context.Context, id uuid.UUID, in BankAccountPatch) (*models.ManagedBankAccount, error) {
	updates := patchSet{}
	setPtr(updates, "account_holder", in.AccountHolder)
	if in.IBAN != nil {
		updates["iban"] = normalizeIBAN(*in.IBAN)
	}
	setNullable(updates, "branch", in.Branch)
	setNullable(updates, "description", in.Description)
	setPtr(updates, "is_active", in.IsActive)
	row, err := s.accounts.Update(ctx, id, updates)
	return row, mapErr(err, "bank account", "update")
}

func (s *Service) DeleteBankAccount(ctx context.Context, id uuid.UUID) error {
	return mapErr(s.accounts.Delete(ctx, id), "bank account", "delete")
}

func normalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
}
