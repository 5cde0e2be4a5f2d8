package enums

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationTypeOrderPaid       NotificationType = "order_paid"
	NotificationTypePaymentFailed   NotificationType = "payment_failed"
	NotificationTypeInvoiceReady    NotificationType = "invoice_ready"
	NotificationTypeProductReviewed NotificationType = "product_reviewed"
	NotificationTypeAnnouncement    NotificationType = "announcement"
	NotificationTypeSystem          NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderPaid,
	NotificationTypePaymentFailed,
	NotificationTypeInvoiceReady,
	NotificationTypeProductReviewed,
	NotificationTypeAnnouncement,
	NotificationTypeSystem,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	return isOneOf(n, validNotificationTypes)
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parseOneOf(value, validNotificationTypes, "notification type")
}

// Audience limits which roles see an announcement.
type Audience string

const (
	AudienceAll      Audience = "all"
	AudienceCustomer Audience = "customer"
	AudienceSeller   Audience = "seller"
)

var validAudiences = []Audience{AudienceAll, AudienceCustomer, AudienceSeller}

func (a Audience) IsValid() bool {
	return isOneOf(a, validAudiences)
}

func ParseAudience(value string) (Audience, error) {
	return parseOneOf(value, validAudiences, "audience")
}

// Includes reports whether a caller with role sees content for this audience.
func (a Audience) Includes(role Role) bool {
	switch a {
	case AudienceAll:
		return true
	case AudienceCustomer:
		return role == RoleCustomer || role == RoleAdmin
	case AudienceSeller:
		return role == RoleSeller || role == RoleAdmin
	}
	return false
}
