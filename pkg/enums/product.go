package enums

// ApprovalStatus tracks admin review of seller listings.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

var validApprovalStatuses = []ApprovalStatus{ApprovalPending, ApprovalApproved, ApprovalRejected}

func (a ApprovalStatus) IsValid() bool {
	return isOneOf(a, validApprovalStatuses)
}

// ParseApprovalStatus converts raw input into an ApprovalStatus.
func ParseApprovalStatus(value string) (ApprovalStatus, error) {
	return parseOneOf(value, validApprovalStatuses, "approval status")
}
