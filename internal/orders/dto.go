package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// ListFilters narrow an order listing. BuyerID and SellerID are set by the
// service from the caller, never from the query string.
type ListFilters struct {
	BuyerID       *uuid.UUID
	SellerID      *uuid.UUID
	Status        *enums.OrderStatus
	InvoiceStatus *enums.InvoiceStatus
}

// ListParams is what handlers pass in.
type ListParams struct {
	Status        *enums.OrderStatus
	InvoiceStatus *enums.InvoiceStatus
	Limit         int
	Cursor        string
}
