package profiles

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Repository exposes profile persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a profiles repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a profile by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// RoleOf returns only the role column. gorm.ErrRecordNotFound signals a
// session whose user has no profile row.
func (r *Repository) RoleOf(ctx context.Context, id uuid.UUID) (enums.Role, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Select("id", "role").First(&profile, "id = ?", id).Error; err != nil {
		return "", err
	}
	return profile.Role, nil
}

// IDsByRoles lists profile ids holding any of the roles. An empty roles slice
// selects every profile.
func (r *Repository) IDsByRoles(ctx context.Context, roles []enums.Role) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).Model(&models.Profile{})
	if len(roles) > 0 {
		query = query.Where("role IN ?", roles)
	}
	var ids []uuid.UUID
	if err := query.Order("created_at").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
