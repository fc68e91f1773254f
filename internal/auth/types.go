// Package auth implements credential authentication, bearer token issuance
// and verification, and the composable authorization filter algebra.
package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the single role a user holds.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleStaff   Role = "Staff"
	RoleOwner   Role = "Owner"
)

// ParseRole normalizes and validates a role value.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "manager":
		return RoleManager, nil
	case "staff":
		return RoleStaff, nil
	case "owner":
		return RoleOwner, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Permission keys gate individual CRM operations.
const (
	PermManageRestaurants    = "crm.restaurant.manage"
	PermManageContacts       = "crm.contact.manage"
	PermRecordInteractions   = "crm.interaction.record"
	PermManageOrders         = "crm.order.manage"
	PermManageCallPlans      = "crm.callplan.manage"
	PermViewPerformance      = "crm.performance.view"
	PermRecomputePerformance = "crm.performance.recompute"
)

// rolePermissions derives the permission set from the user's single role.
var rolePermissions = map[Role][]string{
	RoleAdmin: {
		PermManageRestaurants, PermManageContacts, PermRecordInteractions,
		PermManageOrders, PermManageCallPlans, PermViewPerformance,
		PermRecomputePerformance,
	},
	RoleManager: {
		PermManageRestaurants, PermManageContacts, PermRecordInteractions,
		PermManageOrders, PermManageCallPlans, PermViewPerformance,
		PermRecomputePerformance,
	},
	RoleStaff: {
		PermRecordInteractions, PermManageOrders, PermManageCallPlans,
		PermViewPerformance,
	},
	RoleOwner: {
		PermViewPerformance,
	},
}

// User is the principal: a staff contact with a role and a restaurant
// association. PasswordHash never serializes.
type User struct {
	ID           string    `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	RestaurantID string    `json:"restaurant_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasPermission reports whether the user's role grants the permission key.
func (u *User) HasPermission(key string) bool {
	if u == nil {
		return false
	}
	for _, p := range rolePermissions[u.Role] {
		if p == key {
			return true
		}
	}
	return false
}

// Permissions returns the user's derived permission set.
func (u *User) Permissions() []string {
	if u == nil {
		return nil
	}
	perms := rolePermissions[u.Role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
