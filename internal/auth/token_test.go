// ABOUTME: Tests for opaque agent token minting, parsing, and verification.
// ABOUTME: Uses a real SQLite store so the hash round-trips through TEXT.

package auth

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/95percent-ai/butt-dial/internal/store"
)

func setupAuthStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMintAgentToken(t *testing.T) {
	plaintext, tok, err := MintAgentToken("agent-1", "tenant-1", "laptop")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plaintext, "bd_"))
	assert.True(t, strings.HasPrefix(tok.ID, "tok-"))
	assert.Equal(t, "agent-1", tok.AgentID)
	assert.Equal(t, "tenant-1", tok.TenantID)
	assert.Equal(t, "laptop", tok.Label)
	assert.Equal(t, store.TokenActive, tok.Status)

	// The hash must not leak the secret.
	_, secret, err := ParseAgentToken(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, tok.TokenHash, secret)
}

func TestMintAgentToken_UniquePerMint(t *testing.T) {
	first, firstTok, err := MintAgentToken("agent-1", "tenant-1", "")
	require.NoError(t, err)
	second, secondTok, err := MintAgentToken("agent-1", "tenant-1", "")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, firstTok.ID, secondTok.ID)
}

func TestParseAgentToken(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantID  string
		wantErr bool
	}{
		{"valid", "bd_tok-abc123_deadbeef", "tok-abc123", false},
		{"missing prefix", "tok-abc123_deadbeef", "", true},
		{"no separator", "bd_tokabc123deadbeef", "", true},
		{"empty secret", "bd_tok-abc123_", "", true},
		{"empty id", "bd__deadbeef", "", true},
		{"empty string", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, secret, err := ParseAgentToken(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.NotEmpty(t, secret)
		})
	}
}

func TestVerifyAgentToken(t *testing.T) {
	s := setupAuthStore(t)

	plaintext, tok, err := MintAgentToken("agent-1", "tenant-1", "")
	require.NoError(t, err)
	require.NoError(t, s.CreateToken(context.Background(), tok))

	got, err := VerifyAgentToken(context.Background(), s, plaintext)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.Equal(t, "agent-1", got.AgentID)
}

func TestVerifyAgentToken_StampsLastUsed(t *testing.T) {
	s := setupAuthStore(t)

	plaintext, tok, err := MintAgentToken("agent-1", "tenant-1", "")
	require.NoError(t, err)
	require.NoError(t, s.CreateToken(context.Background(), tok))

	_, err = VerifyAgentToken(context.Background(), s, plaintext)
	require.NoError(t, err)

	stored, err := s.GetToken(context.Background(), tok.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)
	assert.WithinDuration(t, time.Now().UTC(), *stored.LastUsedAt, 5*time.Second)
}

func TestVerifyAgentToken_WrongSecret(t *testing.T) {
	s := setupAuthStore(t)

	_, tok, err := MintAgentToken("agent-1", "tenant-1", "")
	require.NoError(t, err)
	require.NoError(t, s.CreateToken(context.Background(), tok))

	forged := "bd_" + tok.ID + "_0000000000000000000000000000000000000000000000ff"
	_, err = VerifyAgentToken(context.Background(), s, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAgentToken_UnknownID(t *testing.T) {
	s := setupAuthStore(t)

	_, err := VerifyAgentToken(context.Background(), s, "bd_tok-missing_deadbeefdeadbeef")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAgentToken_Revoked(t *testing.T) {
	s := setupAuthStore(t)

	plaintext, tok, err := MintAgentToken("agent-1", "tenant-1", "")
	require.NoError(t, err)
	require.NoError(t, s.CreateToken(context.Background(), tok))
	require.NoError(t, s.RevokeAgentTokens(context.Background(), "agent-1"))

	_, err = VerifyAgentToken(context.Background(), s, plaintext)
	assert.ErrorIs(t, err, ErrRevokedToken)
}
