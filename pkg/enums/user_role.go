package enums

import "fmt"

// UserRole represents the marketplace-wide role carried on access tokens.
type UserRole string

const (
	UserRoleUser          UserRole = "USER"
	UserRoleAdmin         UserRole = "ADMIN"
	UserRoleAdministrator UserRole = "ADMINISTRATOR"
)

var validUserRoles = []UserRole{
	UserRoleUser,
	UserRoleAdmin,
	UserRoleAdministrator,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role may use administrative views.
func (r UserRole) IsStaff() bool {
	return r == UserRoleAdmin || r == UserRoleAdministrator
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
