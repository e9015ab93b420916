package auth

import "fmt"

// Role identifies the authority level of a principal. Every role except
// RoleGlobalSuperAdmin is bound to a single tenant.
type Role string

const (
	RoleGlobalSuperAdmin Role = "global_super_admin"
	RoleSchoolSuperAdmin Role = "school_super_admin"
	RoleSchoolAdmin      Role = "school_admin"
	RoleStaff            Role = "staff"
	RoleParent           Role = "parent"
	RoleStudent          Role = "student"
)

// roleHierarchy maps a role to the set of roles it dominates. A holder of a
// role is authorized wherever the role itself or any dominated role is
// required. The mapping is static and acyclic.
var roleHierarchy = map[Role][]Role{
	RoleGlobalSuperAdmin: {RoleSchoolSuperAdmin, RoleSchoolAdmin, RoleStaff, RoleParent, RoleStudent},
	RoleSchoolSuperAdmin: {RoleSchoolAdmin, RoleStaff, RoleParent, RoleStudent},
	RoleSchoolAdmin:      {RoleStaff, RoleParent, RoleStudent},
	RoleStaff:            {},
	RoleParent:           {},
	RoleStudent:          {},
}

// ParseRole converts a wire-format role string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrBadRequest, s)
	}
	return r, nil
}

// Valid reports whether the role is part of the fixed enumeration.
func (r Role) Valid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// TenantScoped reports whether the role requires a tenant binding.
func (r Role) TenantScoped() bool {
	return r.Valid() && r != RoleGlobalSuperAdmin
}

// Dominates reports whether r outranks other in the hierarchy. A role does
// not dominate itself.
func (r Role) Dominates(other Role) bool {
	for _, dominated := range roleHierarchy[r] {
		if dominated == other {
			return true
		}
	}
	return false
}

// IsAuthorized reports whether actual, or any role it dominates, intersects
// the required set. Pure and total: unknown roles simply never match.
func IsAuthorized(actual Role, required ...Role) bool {
	for _, want := range required {
		if actual == want || actual.Dominates(want) {
			return true
		}
	}
	return false
}
