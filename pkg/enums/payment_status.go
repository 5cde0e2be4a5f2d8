package enums

// PaymentStatus maps to payments.status.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

var validPaymentStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed}

func (s PaymentStatus) IsValid() bool {
	return isOneOf(s, validPaymentStatuses)
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parseOneOf(value, validPaymentStatuses, "payment status")
}
