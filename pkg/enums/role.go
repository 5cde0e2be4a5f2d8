package enums

// Role maps to profiles.role and drives coarse authorization.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

var validRoles = []Role{RoleCustomer, RoleSeller, RoleAdmin}

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	return isOneOf(r, validRoles)
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	return parseOneOf(value, validRoles, "role")
}
