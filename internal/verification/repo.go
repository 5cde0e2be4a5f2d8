package verification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Repository persists card edit verification codes.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, v *models.CardEditVerification) error {
	return r.db.WithContext(ctx).Create(v).Error
}

// Recent lists the newest codes issued for (user, card), used or not.
func (r *Repository) Recent(ctx context.Context, userID, cardID uuid.UUID, limit int) ([]models.CardEditVerification, error) {
	var rows []models.CardEditVerification
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND card_id = ?", userID, cardID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CardEditVerification, error) {
	var row models.CardEditVerification
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Consume flips used only while the code is unused and unexpired. It reports
// false when another request consumed it first or it expired meanwhile.
func (r *Repository) Consume(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CardEditVerification{}).
		Where("id = ? AND used = ? AND expires_at > ?", id, false, now).
		Updates(map[string]any{"used": true, "used_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteStale removes codes created before cutoff that are used or expired.
func (r *Repository) DeleteStale(ctx context.Context, tx *gorm.DB, cutoff, now time.Time) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	res := conn.WithContext(ctx).
		Where("created_at < ? AND (used = ? OR expires_at <= ?)", cutoff, true, now).
		Delete(&models.CardEditVerification{})
	return res.RowsAffected, res.Error
}
