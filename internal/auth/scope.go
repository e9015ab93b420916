package auth

import "fmt"

// Filter is a persistence query filter keyed by column name. ScopedFilter
// augments it so tenant isolation cannot be bypassed by callers.
type Filter map[string]any

// ResolveScope derives the effective tenant a request operates under.
//
// The global super admin may act tenant-less (requestedTenant empty, queries
// span all tenants) or impersonate any tenant. Tenant-scoped roles must carry
// a tenant binding and may only request their own tenant.
func ResolveScope(sub Subject, requestedTenant string) (Scope, error) {
	if sub.Role == RoleGlobalSuperAdmin {
		return Scope{
			PrincipalID: sub.ID,
			Role:        sub.Role,
			TenantID:    requestedTenant,
			Global:      true,
		}, nil
	}
	if !sub.Role.TenantScoped() {
		return Scope{}, fmt.Errorf("%w: unknown role %q", ErrBadRequest, sub.Role)
	}
	if sub.TenantID == "" {
		return Scope{}, ErrMissingTenant
	}
	if requestedTenant != "" && requestedTenant != sub.TenantID {
		return Scope{}, ErrTenantMismatch
	}
	return Scope{PrincipalID: sub.ID, Role: sub.Role, TenantID: sub.TenantID}, nil
}

// ScopedFilter rewrites base so the query stays inside the caller's tenant
// scope. Same resolution rules as ResolveScope: a global admin with a
// requested tenant pins the filter to it, a global admin without one queries
// across all tenants, and tenant-scoped roles are always pinned to their own
// tenant. base is not mutated.
func ScopedFilter(sub Subject, base Filter, requestedTenant string) (Filter, error) {
	scope, err := ResolveScope(sub, requestedTenant)
	if err != nil {
		return nil, err
	}
	out := make(Filter, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	if scope.Global && scope.TenantID == "" {
		return out, nil
	}
	out["tenant_id"] = scope.TenantID
	return out, nil
}
