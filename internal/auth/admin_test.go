// ABOUTME: Tests for admin JWT minting and verification.
// ABOUTME: Covers role claims, expiry, and tampered tokens.

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

func TestJWTVerifier_GenerateAndVerify(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("tenant-1", tenancy.RoleTenantAdmin, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, tenancy.RoleTenantAdmin, claims.Role)
}

func TestJWTVerifier_SuperAdminNeedsNoTenant(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("", tenancy.RoleSuperAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Empty(t, claims.TenantID)
	assert.Equal(t, tenancy.RoleSuperAdmin, claims.Role)
}

func TestJWTVerifier_TenantAdminRequiresTenant(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("", tenancy.RoleTenantAdmin, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestJWTVerifier_Expired(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("tenant-1", tenancy.RoleTenantAdmin, -time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	minter := NewJWTVerifier([]byte("secret-a"))
	verifier := NewJWTVerifier([]byte("secret-b"))

	token, err := minter.Generate("tenant-1", tenancy.RoleTenantAdmin, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_AgentRoleRejected(t *testing.T) {
	// An agent role inside a JWT is never legitimate; agents use bd_
	// bearer tokens.
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("tenant-1", tenancy.RoleAgent, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_Garbage(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	_, err := v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
