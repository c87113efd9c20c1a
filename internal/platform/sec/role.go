// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package sec

import "fmt"

// # Roles

// Role represents the authorization level granted to an account.
//
// Role strings appear in IdP token claims and in the user directory; this is
// the single closed enum for both. Parsing is strict: an unknown role string
// is an error, never a silent downgrade to the lowest privilege.
type Role string

const (
	// Unrestricted platform access
	RoleAdmin Role = "admin"

	// Manages one charging network and its stations (network-scoped)
	RolePartner Role = "partner"

	// Operates a single station on behalf of a partner (station-scoped)
	RoleOperator Role = "operator"

	// Default role for registered drivers
	RoleUser Role = "user"

	// Unauthenticated or read-only trial access
	RoleGuest Role = "guest"
)

// ParseRole converts a raw role string into a [Role].
//
// It fails on anything outside the closed enum so a malformed token claim or
// database row surfaces as a validation problem instead of granting guest access.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleAdmin, RolePartner, RoleOperator, RoleUser, RoleGuest:
		return Role(raw), nil
	default:
		return "", fmt.Errorf("sec: unknown role %q", raw)
	}
}

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r Role) AtLeast(target Role) bool {
	return r.level() >= target.level()
}

// IsScoped reports whether the role requires tenant scope identifiers
// (network for partners, station for operators).
func (r Role) IsScoped() bool {
	return r == RolePartner || r == RoleOperator
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r Role) level() int {

	// Linear scale (10-50) allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 50
	case RolePartner:
		return 40
	case RoleOperator:
		return 30
	case RoleUser:
		return 20
	case RoleGuest:
		return 10
	default:
		return 0
	}
}
