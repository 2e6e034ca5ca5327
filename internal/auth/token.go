// ABOUTME: Opaque bearer tokens for agent authentication
// ABOUTME: Minted as bd_<id>_<secret> with only the bcrypt hash stored

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/95percent-ai/butt-dial/internal/store"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevokedToken = errors.New("token revoked")
)

// tokenPrefix marks agent bearer tokens apart from admin JWTs.
const tokenPrefix = "bd_"

// dummyHash is compared when the token ID does not resolve, so lookup
// misses cost the same as a wrong secret.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// TokenStore is the slice of the store token verification needs.
type TokenStore interface {
	GetToken(ctx context.Context, id string) (*store.Token, error)
	TouchToken(ctx context.Context, id string, at time.Time) error
}

// MintAgentToken creates a fresh bearer token for an agent. The plaintext
// is returned exactly once; only the bcrypt hash is persisted.
func MintAgentToken(agentID, tenantID, label string) (string, *store.Token, error) {
	id, err := generateSecureToken(6)
	if err != nil {
		return "", nil, fmt.Errorf("generating token id: %w", err)
	}
	id = "tok-" + id

	secret, err := generateSecureToken(24)
	if err != nil {
		return "", nil, fmt.Errorf("generating token secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hashing token secret: %w", err)
	}

	tok := &store.Token{
		ID:        id,
		AgentID:   agentID,
		TenantID:  tenantID,
		TokenHash: string(hash),
		Label:     label,
		Status:    store.TokenActive,
		CreatedAt: time.Now().UTC(),
	}

	plaintext := tokenPrefix + id + "_" + secret
	return plaintext, tok, nil
}

// ParseAgentToken splits a presented bearer token into its embedded token
// ID and secret. The ID lets verification hit one row instead of
// comparing against every hash.
func ParseAgentToken(plaintext string) (id, secret string, err error) {
	if !strings.HasPrefix(plaintext, tokenPrefix) {
		return "", "", ErrInvalidToken
	}
	rest := strings.TrimPrefix(plaintext, tokenPrefix)

	idx := strings.LastIndex(rest, "_")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", ErrInvalidToken
	}
	return rest[:idx], rest[idx+1:], nil
}

// VerifyAgentToken resolves and checks a presented bearer token. Returns
// the stored token row on success and stamps its last-used time.
func VerifyAgentToken(ctx context.Context, tokens TokenStore, plaintext string) (*store.Token, error) {
	id, secret, err := ParseAgentToken(plaintext)
	if err != nil {
		return nil, err
	}

	tok, err := tokens.GetToken(ctx, id)
	if err != nil {
		// Burn a comparison anyway so misses are not faster than
		// wrong secrets.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(secret))
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("looking up token: %w", err)
	}

	if tok.Status == store.TokenRevoked {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(secret))
		return nil, ErrRevokedToken
	}

	if err := bcrypt.CompareHashAndPassword([]byte(tok.TokenHash), []byte(secret)); err != nil {
		return nil, ErrInvalidToken
	}

	// Best effort: a failed stamp must not fail authentication.
	_ = tokens.TouchToken(ctx, tok.ID, time.Now().UTC())

	return tok, nil
}

// generateSecureToken generates a cryptographically secure random token
// of the given byte length, hex encoded.
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
