package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindWithItems(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// List returns up to limit+1 orders newest first.
func (r *repository) List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.BuyerID != nil {
		query = query.Where("buyer_id = ?", *filters.BuyerID)
	}
	if filters.SellerID != nil {
		query = query.Where("seller_id = ?", *filters.SellerID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.InvoiceStatus != nil {
		query = query.Where("invoice_status = ?", *filters.InvoiceStatus)
	}

	var rows []models.Order
	err := query.Scopes(pagination.Keyset(cursor, limit)).Find(&rows).Error
	return rows, err
}

// MarkPaid moves an order to paid and stamps paid_at.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error {
	return r.update(ctx, id, map[string]any{
		"status":  enums.OrderStatusPaid,
		"paid_at": paidAt,
	})
}

func (r *repository) MarkPaymentFailed(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status <> ?", id, enums.OrderStatusPaid).
		Update("status", enums.OrderStatusPaymentFailed)
	return res.Error
}

func (r *repository) SetInvoice(ctx context.Context, id, invoiceID uuid.UUID) error {
	return r.update(ctx, id, map[string]any{
		"invoice_id":     invoiceID,
		"invoice_status": enums.InvoiceStatusGenerated,
	})
}

func (r *repository) SetInvoiceStatus(ctx context.Context, id uuid.UUID, status enums.InvoiceStatus) error {
	return r.update(ctx, id, map[string]any{"invoice_status": status})
}

func (r *repository) update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
