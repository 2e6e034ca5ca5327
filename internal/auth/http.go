// ABOUTME: HTTP middleware authenticating agent tokens and admin JWTs
// ABOUTME: Attaches AuthContext to the request context for handlers

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/95percent-ai/butt-dial/internal/store"
	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// AgentStore is the slice of the store the middleware needs to resolve
// agent bearer tokens.
type AgentStore interface {
	TokenStore
	GetAgent(ctx context.Context, id string) (*store.Agent, error)
}

// Authenticator validates bearer credentials on incoming requests. Agent
// tokens (bd_ prefix) resolve through the store; anything else is treated
// as an admin JWT. In demo mode a fixed super-admin bearer is accepted so
// the whole surface works without minting JWTs first.
type Authenticator struct {
	store     AgentStore
	jwt       *JWTVerifier
	demoToken string
	logger    *slog.Logger
}

// NewAuthenticator creates the middleware factory. demoToken may be empty
// to disable the demo super-admin bearer.
func NewAuthenticator(s AgentStore, jwt *JWTVerifier, demoToken string, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		store:     s,
		jwt:       jwt,
		demoToken: demoToken,
		logger:    logger.With("component", "auth"),
	}
}

// Middleware authenticates the request and attaches AuthContext using the
// same WithAuth/FromContext pattern handlers read it back with.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
		if errMsg != "" {
			http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
			return
		}

		if a.demoToken != "" && token == a.demoToken {
			authCtx := &AuthContext{Role: tenancy.RoleSuperAdmin}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
			return
		}

		if strings.HasPrefix(token, tokenPrefix) {
			a.serveAgent(w, r, next, token)
			return
		}

		a.serveAdmin(w, r, next, token)
	})
}

// extractBearerToken pulls the credential out of an Authorization header.
// The second return is a client-facing error message, empty on success.
func extractBearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", "invalid authorization header format"
	}
	return strings.TrimPrefix(header, prefix), ""
}

// serveAgent authenticates a bd_ bearer token and checks the agent is
// still active.
func (a *Authenticator) serveAgent(w http.ResponseWriter, r *http.Request, next http.Handler, token string) {
	tok, err := VerifyAgentToken(r.Context(), a.store, token)
	if err != nil {
		switch {
		case errors.Is(err, ErrRevokedToken):
			http.Error(w, `{"error":"token revoked"}`, http.StatusUnauthorized)
		case errors.Is(err, ErrInvalidToken):
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		default:
			a.logger.Error("token verification failed", "error", err)
			http.Error(w, `{"error":"authentication unavailable"}`, http.StatusInternalServerError)
		}
		return
	}

	agent, err := a.store.GetAgent(r.Context(), tok.AgentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error":"agent not found"}`, http.StatusUnauthorized)
			return
		}
		a.logger.Error("agent lookup failed", "agent_id", tok.AgentID, "error", err)
		http.Error(w, `{"error":"authentication unavailable"}`, http.StatusInternalServerError)
		return
	}

	if agent.Status != store.StatusActive {
		http.Error(w, `{"error":"agent is inactive"}`, http.StatusForbidden)
		return
	}

	authCtx := &AuthContext{
		AgentID:  agent.ID,
		TenantID: tok.TenantID,
		Role:     tenancy.RoleAgent,
		TokenID:  tok.ID,
	}
	next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
}

// serveAdmin authenticates an admin JWT.
func (a *Authenticator) serveAdmin(w http.ResponseWriter, r *http.Request, next http.Handler, token string) {
	if a.jwt == nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}

	claims, err := a.jwt.Verify(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			http.Error(w, `{"error":"token expired"}`, http.StatusUnauthorized)
			return
		}
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}

	authCtx := &AuthContext{
		TenantID: claims.TenantID,
		Role:     claims.Role,
	}
	next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
}

// RequireAdminHTTP creates an HTTP middleware that requires an admin
// identity. Must be used after Middleware.
func RequireAdminHTTP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}

			if !authCtx.IsAdmin() {
				http.Error(w, `{"error":"admin role required"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperAdminHTTP creates an HTTP middleware that requires the
// super-admin role. Must be used after Middleware.
func RequireSuperAdminHTTP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}

			if authCtx.Role != tenancy.RoleSuperAdmin {
				http.Error(w, `{"error":"super-admin role required"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
