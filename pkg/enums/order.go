package enums

// OrderStatus maps to orders.status.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusPaid          OrderStatus = "paid"
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
	OrderStatusShipped       OrderStatus = "shipped"
	OrderStatusDelivered     OrderStatus = "delivered"
	OrderStatusCanceled      OrderStatus = "canceled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusPaymentFailed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCanceled,
}

func (s OrderStatus) IsValid() bool {
	return isOneOf(s, validOrderStatuses)
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parseOneOf(value, validOrderStatuses, "order status")
}

// InvoiceStatus maps to orders.invoice_status.
type InvoiceStatus string

const (
	InvoiceStatusNone      InvoiceStatus = "none"
	InvoiceStatusGenerated InvoiceStatus = "generated"
	InvoiceStatusFailed    InvoiceStatus = "failed"
)

var validInvoiceStatuses = []InvoiceStatus{InvoiceStatusNone, InvoiceStatusGenerated, InvoiceStatusFailed}

func (s InvoiceStatus) IsValid() bool {
	return isOneOf(s, validInvoiceStatuses)
}

func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	return parseOneOf(value, validInvoiceStatuses, "invoice status")
}
