// ABOUTME: JWT verification for tenant-admin and super-admin sessions
// ABOUTME: Uses HS256 signing with configurable secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// JWT errors
var (
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// AdminClaims is the identity carried inside an admin JWT.
type AdminClaims struct {
	TenantID string
	Role     tenancy.Role
}

// JWTVerifier mints and validates HS256 admin tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates the token and extracts the tenant ID and role claims.
func (v *JWTVerifier) Verify(tokenString string) (*AdminClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	roleStr, ok := claims["role"].(string)
	if !ok || roleStr == "" {
		return nil, fmt.Errorf("%w: role", ErrMissingClaim)
	}
	role := tenancy.Role(roleStr)
	if role != tenancy.RoleTenantAdmin && role != tenancy.RoleSuperAdmin {
		return nil, fmt.Errorf("%w: unexpected role %q", ErrInvalidToken, roleStr)
	}

	tenantID, _ := claims["sub"].(string)
	if role == tenancy.RoleTenantAdmin && tenantID == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return &AdminClaims{TenantID: tenantID, Role: role}, nil
}

// Generate creates an admin JWT for the given tenant and role with
// expiration. Super-admin tokens carry no tenant.
func (v *JWTVerifier) Generate(tenantID string, role tenancy.Role, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  tenantID,
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
