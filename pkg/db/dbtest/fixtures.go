package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Item describes an order line for SeedOrder. A nil TaxRate leaves the
// column empty.
type Item struct {
	Name      string
	UnitPrice string
	Quantity  int
	TaxRate   *string
}

// SeedProfile inserts a profile with the given role.
func SeedProfile(t *testing.T, conn *gorm.DB, role enums.Role) models.Profile {
	t.Helper()
	id := uuid.New()
	profile := models.Profile{
		ID:       id,
		Email:    fmt.Sprintf("%s-%s@example.com", role, id.String()[:8]),
		FullName: "Test " + string(role),
		Role:     role,
	}
	if err := conn.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return profile
}

// SeedOrder inserts a pending order with items and totals computed from the
// items at an 18% default rate.
func SeedOrder(t *testing.T, conn *gorm.DB, buyerID, sellerID uuid.UUID, items ...Item) models.Order {
	t.Helper()
	id := uuid.New()
	order := models.Order{
		ID:            id,
		OrderNumber:   "ORD-" + id.String()[:8],
		BuyerID:       buyerID,
		SellerID:      sellerID,
		Status:        enums.OrderStatusPending,
		Currency:      "USD",
		InvoiceStatus: enums.InvoiceStatusNone,
	}
	for _, item := range items {
		price := decimal.RequireFromString(item.UnitPrice)
		rate := decimal.NewFromInt(18)
		line := models.OrderItem{
			OrderID:     id,
			ProductName: item.Name,
			UnitPrice:   price,
			Quantity:    item.Quantity,
		}
		if item.TaxRate != nil {
			r := decimal.RequireFromString(*item.TaxRate)
			line.TaxRate = &r
			rate = r
		}
		net := price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		order.Subtotal = order.Subtotal.Add(net)
		order.TaxTotal = order.TaxTotal.Add(net.Mul(rate).Div(decimal.NewFromInt(100)).Round(2))
		order.Items = append(order.Items, line)
	}
	order.Total = order.Subtotal.Add(order.TaxTotal)
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}
