package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// CatalogService is the reference-data surface backing brands, categories,
// announcements, banks and managed bank accounts.
type CatalogService interface {
	ListBrands(ctx context.Context, activeOnly bool) ([]models.Brand, error)
	CreateBrand(ctx context.Context, in catalog.BrandInput) (*models.Brand, error)
	UpdateBrand(ctx context.Context, id uuid.UUID, in catalog.BrandPatch) (*models.Brand, error)
	DeleteBrand(ctx context.Context, id uuid.UUID) error

	ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error)
	CreateCategory(ctx context.Context, in catalog.CategoryInput) (*models.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, in catalog.CategoryPatch) (*models.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	ListVisibleAnnouncements(ctx context.Context, role enums.Role) ([]models.Announcement, error)
	ListAnnouncements(ctx context.Context) ([]models.Announcement, error)
	CreateAnnouncement(ctx context.Context, createdBy uuid.UUID, in catalog.AnnouncementInput) (*models.Announcement, error)
	UpdateAnnouncement(ctx context.Context, id uuid.UUID, in catalog.AnnouncementPatch) (*models.Announcement, error)
	DeleteAnnouncement(ctx context.Context, id uuid.UUID) error

	ListBanks(ctx context.Context, activeOnly bool) ([]models.Bank, error)
	CreateBank(ctx context.Context, in catalog.BankInput) (*models.Bank, error)
	UpdateBank(ctx context.Context, id uuid.UUID, in catalog.BankPatch) (*models.Bank, error)
	DeleteBank(ctx context.Context, id uuid.UUID) error

	ListBankAccounts(ctx context.Context, activeOnly bool) ([]models.ManagedBankAccount, error)
	CreateBankAccount(ctx context.Context, in catalog.BankAccountInput) (*models.ManagedBankAccount, error)
	UpdateBankAccount(ctx context.Context, id uuid.UUID, in catalog.BankAccountPatch) (*models.ManagedBankAccount, error)
	DeleteBankAccount(ctx context.Context, id uuid.UUID) error
}

const resourceIDParam = "id"

func listResource[T any](logg *logger.Logger, list func(context.Context) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := list(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rows == nil {
			rows = []T{}
		}
		responses.WriteSuccess(w, rows)
	}
}

func createResource[In any, Out any](logg *logger.Logger, create func(*http.Request, In) (Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload In
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := create(r, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}

func updateResource[In any, Out any](logg *logger.Logger, update func(context.Context, uuid.UUID, In) (Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseURLParamUUID(r, resourceIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload In
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := update(r.Context(), id, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func deleteResource(logg *logger.Logger, del func(context.Context, uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseURLParamUUID(r, resourceIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := del(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "deleted": true})
	}
}

// Public listings only show active rows.

func ListBrands(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return listResource(logg, func(ctx context.Context) ([]models.Brand, error) {
		return svc.ListBrands(ctx, true)
	})
}

func ListCategories(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return listResource(logg, func(ctx context.Context) ([]models.Category, error) {
		return svc.ListCategories(ctx, true)
	})
}

// ListAnnouncements shows the announcements visible to the caller's role, or
// audience "all" for anonymous callers.
func ListAnnouncements(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return listResource(logg, func(ctx context.Context) ([]models.Announcement, error) {
		return svc.ListVisibleAnnouncements(ctx, middleware.RoleFromContext(ctx))
	})
}

func ListBanks(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return listResource(logg, func(ctx context.Context) ([]models.Bank, error) {
		return svc.ListBanks(ctx, true)
	})
}

func ListBankAccounts(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return listResource(logg, func(ctx context.Context) ([]models.ManagedBankAccount, error) {
		return svc.ListBankAccounts(ctx, true)
	})
}

// Admin

func AdminListBrands(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return listResource(logg, func(ctx context.Context) ([]models.Brand, error) {
		return svc.ListBrands(ctx, false)
	})
}

func AdminCreateBrand(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return createResource(logg, func(r *http.Request, in catalog.BrandInput) (*models.Brand, error) {
		return svc.CreateBrand(r.Context(), in)
	})
}

func AdminUpdateBrand(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return updateResource(logg, svc.UpdateBrand)
}

func AdminDeleteBrand(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return deleteResource(logg, svc.DeleteBrand)
}

func AdminListCategories(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return listResource(logg, func(ctx context.Context) ([]models.Category, error) {
		return svc.ListCategories(ctx, false)
	})
}

func AdminCreateCategory(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return createResource(logg, func(r *http.Request, in catalog.CategoryInput) (*models.Category, error) {
		return svc.CreateCategory(r.Context(), in)
	})
}

func AdminUpdateCategory(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return updateResource(logg, svc.UpdateCategory)
}

func AdminDeleteCategory(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return deleteResource(logg, svc.DeleteCategory)
}

func AdminListAnnouncements(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return listResource(logg, svc.ListAnnouncements)
}

func AdminCreateAnnouncement(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return createResource(logg, func(r *http.Request, in catalog.AnnouncementInput) (*models.Announcement, error) {
		return svc.CreateAnnouncement(r.Context(), middleware.UserIDFromContext(r.Context()), in)
	})
}

func AdminUpdateAnnouncement(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return updateResource(logg, svc.UpdateAnnouncement)
}

func AdminDeleteAnnouncement(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return deleteResource(logg, svc.DeleteAnnouncement)
}

func AdminListBanks(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return listResource(logg, func(ctx context.Context) ([]models.Bank, error) {
		return svc.ListBanks(ctx, false)
	})
}

func AdminCreateBank(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return createResource(logg, func(r *http.Request, in catalog.BankInput) (*models.Bank, error) {
		return svc.CreateBank(r.Context(), in)
	})
}

func AdminUpdateBank(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return updateResource(logg, svc.UpdateBank)
}

func AdminDeleteBank(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return deleteResource(logg, svc.DeleteBank)
}

func AdminListBankAccounts(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return listResource(logg, func(ctx context.Context) ([]models.ManagedBankAccount, error) {
		return svc.ListBankAccounts(ctx, false)
	})
}

func AdminCreateBankAccount(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return createResource(logg, func(r *http.Request, in catalog.BankAccountInput) (*models.ManagedBankAccount, error) {
		return svc.CreateBankAccount(r.Context(), in)
	})
}

func AdminUpdateBankAccount(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return updateResource(logg, svc.UpdateBankAccount)
}

func AdminDeleteBankAccount(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return deleteResource(logg, svc.DeleteBankAccount)
}
