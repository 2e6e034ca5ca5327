// Package tenancy enforces tenant isolation on every data access.
//
// Two primitives cover all access patterns:
//
//   - ScopeFilter(caller): a SQL clause restricting list queries to the
//     caller's tenant. Super-admins get an empty clause.
//   - AssertOwned(tenantID, caller): ownership check for a specific record
//     that has already been loaded. Fails with ErrTenantMismatch, which the
//     HTTP layer reports as an authorization error rather than not-found.
//
// The guard holds no state and never mutates; handlers run it before any
// business logic touches tenant data.
package tenancy
