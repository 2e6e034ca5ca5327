// ABOUTME: Tenant isolation guard applied to every data access path.
// ABOUTME: Builds tenant scoping filters for list queries and asserts row ownership.

package tenancy

import (
	"errors"
	"fmt"
)

// ErrTenantMismatch is returned when a caller touches a record owned by a
// different tenant. Handlers surface it as an authorization failure, never
// as not-found.
var ErrTenantMismatch = errors.New("record belongs to another tenant")

// Role describes how widely a caller may reach across tenants.
type Role string

const (
	// RoleAgent is a provisioned agent acting inside its own tenant.
	RoleAgent Role = "agent"
	// RoleTenantAdmin administers a single tenant.
	RoleTenantAdmin Role = "tenant-admin"
	// RoleSuperAdmin crosses tenant boundaries for operational tooling.
	RoleSuperAdmin Role = "super-admin"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAgent, RoleTenantAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Caller identifies the tenant context a request runs under. The guard is the
// only component that interprets Role; everything else treats Caller as
// opaque and routes data access through ScopeFilter and AssertOwned.
type Caller struct {
	TenantID string
	Role     Role
}

// ScopeFilter returns a SQL clause and its parameters restricting a query to
// the caller's tenant. Super-admins get an empty clause (no restriction).
// Callers append the clause to a WHERE with AND; an empty clause appends
// nothing.
func ScopeFilter(caller Caller) (string, []any) {
	if caller.Role == RoleSuperAdmin {
		return "", nil
	}
	return "tenant_id = ?", []any{caller.TenantID}
}

// AssertOwned checks that a specific record, already loaded, belongs to the
// caller's tenant. It never mutates anything. Super-admins pass
// unconditionally.
func AssertOwned(entityTenantID string, caller Caller) error {
	if caller.Role == RoleSuperAdmin {
		return nil
	}
	if entityTenantID != caller.TenantID {
		return fmt.Errorf("caller tenant %q: %w", caller.TenantID, ErrTenantMismatch)
	}
	return nil
}
