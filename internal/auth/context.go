// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"

	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// AuthContext holds the authenticated identity extracted from a request.
// This is populated by the middleware and retrieved from context in
// handlers.
type AuthContext struct {
	AgentID  string // set only for agent bearer tokens
	TenantID string // empty for super-admin
	Role     tenancy.Role
	TokenID  string // set only for agent bearer tokens
}

// IsAdmin returns true for tenant-admin and super-admin identities.
func (a *AuthContext) IsAdmin() bool {
	return a.Role == tenancy.RoleTenantAdmin || a.Role == tenancy.RoleSuperAdmin
}

// Caller converts the identity into the scoping form the store consumes.
func (a *AuthContext) Caller() tenancy.Caller {
	return tenancy.Caller{TenantID: a.TenantID, Role: a.Role}
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
