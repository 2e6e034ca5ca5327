// Package auth provides authentication and authorization for butt-dial.
//
// # Authentication Methods
//
// The package supports two credential kinds on the same Authorization
// header:
//
//   - Agent Tokens: Opaque bearers shaped bd_<id>_<secret>, minted at
//     provisioning time. Only a bcrypt hash is stored; the embedded ID
//     resolves the row so verification is one lookup plus one compare.
//
//   - Admin JWTs: Tenant-admin and super-admin sessions authenticate with
//     JWT tokens signed with HS256 using the configured jwt_secret. The
//     sub claim carries the tenant, the role claim the privilege level.
//
// In demo mode a fixed super-admin bearer from the config is also
// accepted, so a fresh install is usable before any JWT is minted.
//
// # Identity Propagation
//
// Middleware validates the credential once and attaches an AuthContext
// to the request context. Handlers read it back:
//
//	authCtx := auth.FromContext(ctx)
//	caller := authCtx.Caller() // tenancy scoping for store calls
//
// Revoked tokens and inactive agents are rejected at the middleware, so
// handlers never see them.
//
// # Role Gates
//
// RequireAdminHTTP and RequireSuperAdminHTTP layer on top of Middleware
// for the provisioning and cross-tenant surfaces.
package auth
