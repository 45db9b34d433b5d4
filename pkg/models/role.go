package models

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Role is the closed set of user roles
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleBot   Role = "bot"
)

// Capability is an operation that requires a specific role
type Capability int

const (
	CapManageCatalog Capability = iota
	CapDecideDeposits
	CapSetLimits
	CapViewAdminNotifications
)

var capabilities = map[Role][]Capability{
	RoleAdmin: {CapManageCatalog, CapDecideDeposits, CapSetLimits, CapViewAdminNotifications},
	RoleBot:   {CapManageCatalog},
	RoleUser:  nil,
}

// ParseRole validates a stored or claimed role string.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := capabilities[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	return slices.Contains(capabilities[r], c)
}

func (c Capability) String() string {
	switch c {
	case CapManageCatalog:
		return "manage_catalog"
	case CapDecideDeposits:
		return "decide_deposits"
	case CapSetLimits:
		return "set_limits"
	case CapViewAdminNotifications:
		return "view_admin_notifications"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// Identity is the authenticated acting user handed to core operations.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}
