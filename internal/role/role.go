// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

// Package role defines the closed set of authorization roles and the
// two-source role resolution used to map an authenticated principal to
// exactly one role.
package role

import (
	"errors"
	"fmt"
)

// Role is the authorization category controlling which route subtrees a
// principal may access. The set is closed: a value outside it is rejected,
// never coerced to a default.
type Role string

const (
	// RoleAdmin is the platform administrator role.
	RoleAdmin Role = "admin"

	// RoleEmployee is the back-office employee role.
	RoleEmployee Role = "employee"

	// RoleMerchant is a managed merchant (shop owner) account.
	// Merchants are managed entities, not console operators.
	RoleMerchant Role = "merchant"

	// RoleRider is a managed delivery rider account.
	RoleRider Role = "rider"

	// RoleCustomer is an end-customer account.
	RoleCustomer Role = "customer"
)

// ErrUnknownRole is returned by ParseRole for values outside the closed set.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole converts a string to a Role.
// "shopOwner" is accepted as a legacy spelling of merchant; the users
// collection predates the merchant rename.
func ParseRole(s string) (Role, error) {
	switch s {
	case string(RoleAdmin):
		return RoleAdmin, nil
	case string(RoleEmployee):
		return RoleEmployee, nil
	case string(RoleMerchant), "shopOwner":
		return RoleMerchant, nil
	case string(RoleRider):
		return RoleRider, nil
	case string(RoleCustomer):
		return RoleCustomer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// String returns the string representation of the Role.
func (r Role) String() string {
	return string(r)
}

// IsOperator reports whether the role may operate the admin console at all.
// Merchants, riders and customers exist only as managed entities.
func (r Role) IsOperator() bool {
	return r == RoleAdmin || r == RoleEmployee
}

// Set is a required-role set for a guarded route subtree.
// An empty Set means "any authenticated role", never "public": public routes
// carry no guard at all.
type Set []Role

// NewSet builds a Set from the given roles.
func NewSet(roles ...Role) Set {
	return Set(roles)
}

// Contains reports whether r is a member of the set.
func (s Set) Contains(r Role) bool {
	for _, member := range s {
		if member == r {
			return true
		}
	}
	return false
}

// Strings returns the set members as strings, for logging.
func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}
