// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines domain constants shared across the application:
// user roles and event log levels and categories.
package model

import "slices"

// User roles. The first registered account is always RoleAdmin.
const (
	RoleAdmin       = "Admin"
	RoleContributor = "Contributor"
	RoleUser        = "User"
)

// DefaultRole is assigned to accounts created without an explicit role.
const DefaultRole = RoleUser

// AllRoles returns every known role, most privileged first.
func AllRoles() []string {
	return []string{RoleAdmin, RoleContributor, RoleUser}
}

// IsValidRole reports whether role is one of the known roles.
// Matching is case-sensitive.
func IsValidRole(role string) bool {
	return slices.Contains(AllRoles(), role)
}

// HasAnyRole reports whether role is among allowed.
func HasAnyRole(role string, allowed ...string) bool {
	return role != "" && slices.Contains(allowed, role)
}

// RoleRank orders roles by privilege: higher is more privileged, 0 for an
// unknown role.
func RoleRank(role string) int {
	roles := AllRoles()
	if i := slices.Index(roles, role); i >= 0 {
		return len(roles) - i
	}
	return 0
}
