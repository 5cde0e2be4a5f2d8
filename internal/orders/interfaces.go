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

// Repository defines persistence operations on orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindWithItems(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error
	MarkPaymentFailed(ctx context.Context, id uuid.UUID) error
	SetInvoice(ctx context.Context, id, invoiceID uuid.UUID) error
	SetInvoiceStatus(ctx context.Context, id uuid.UUID, status enums.InvoiceStatus) error
}
