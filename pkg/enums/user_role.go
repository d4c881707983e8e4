package enums

import "fmt"

// UserRole gates pro-only features. Producers and buyers share the same
// account type.
type UserRole string

const (
	UserRoleFree UserRole = "free"
	UserRolePro  UserRole = "pro"
)

func (r UserRole) String() string {
	return string(r)
}

func (r UserRole) IsValid() bool {
	return r == UserRoleFree || r == UserRolePro
}

func ParseUserRole(value string) (UserRole, error) {
	role := UserRole(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid user role %q", value)
	}
	return role, nil
}
