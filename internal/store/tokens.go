// ABOUTME: SQLite persistence for agent API tokens
// ABOUTME: Stores bcrypt hashes only; plaintext never touches the database

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateToken stores a new token hash for an agent.
func (s *SQLiteStore) CreateToken(ctx context.Context, token *Token) error {
	query := `
		INSERT INTO tokens (
			id, agent_id, tenant_id, token_hash, label, status, created_at, last_used_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	status := token.Status
	if status == "" {
		status = TokenActive
	}

	_, err := s.db.ExecContext(ctx, query,
		token.ID,
		token.AgentID,
		token.TenantID,
		token.TokenHash,
		nullString(token.Label),
		status,
		token.CreatedAt.UTC().Format(time.RFC3339),
		nullTime(token.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting token: %w", err)
	}

	s.logger.Debug("created token", "id", token.ID, "agent_id", token.AgentID)
	return nil
}

// GetToken retrieves a token by ID.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStore) GetToken(ctx context.Context, id string) (*Token, error) {
	query := `
		SELECT id, agent_id, tenant_id, token_hash, label, status, created_at, last_used_at
		FROM tokens
		WHERE id = ?
	`

	var token Token
	var label sql.NullString
	var createdAtStr string
	var lastUsedAt sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.AgentID,
		&token.TenantID,
		&token.TokenHash,
		&label,
		&token.Status,
		&createdAtStr,
		&lastUsedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}

	token.Label = label.String

	token.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, err
	}

	token.LastUsedAt, err = parseNullTime(lastUsedAt)
	if err != nil {
		return nil, err
	}

	return &token, nil
}

// ListAgentTokens retrieves all tokens ever issued for an agent, newest
// first. Revoked tokens stay listed for audit purposes.
func (s *SQLiteStore) ListAgentTokens(ctx context.Context, agentID string) ([]*Token, error) {
	query := `
		SELECT id, agent_id, tenant_id, token_hash, label, status, created_at, last_used_at
		FROM tokens
		WHERE agent_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("querying tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []*Token
	for rows.Next() {
		var token Token
		var label sql.NullString
		var createdAtStr string
		var lastUsedAt sql.NullString

		if err := rows.Scan(
			&token.ID,
			&token.AgentID,
			&token.TenantID,
			&token.TokenHash,
			&label,
			&token.Status,
			&createdAtStr,
			&lastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning token row: %w", err)
		}

		token.Label = label.String

		token.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, err
		}

		token.LastUsedAt, err = parseNullTime(lastUsedAt)
		if err != nil {
			return nil, err
		}

		tokens = append(tokens, &token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating token rows: %w", err)
	}

	return tokens, nil
}

// RevokeAgentTokens revokes every active token an agent holds. Revoking an
// agent with no active tokens is not an error.
func (s *SQLiteStore) RevokeAgentTokens(ctx context.Context, agentID string) error {
	query := `UPDATE tokens SET status = ? WHERE agent_id = ? AND status = ?`

	result, err := s.db.ExecContext(ctx, query, TokenRevoked, agentID, TokenActive)
	if err != nil {
		return fmt.Errorf("revoking tokens: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	s.logger.Debug("revoked tokens", "agent_id", agentID, "count", rowsAffected)
	return nil
}

// TouchToken records when a token was last used to authenticate.
func (s *SQLiteStore) TouchToken(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE tokens SET last_used_at = ? WHERE id = ?`

	if _, err := s.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339), id); err != nil {
		return fmt.Errorf("touching token: %w", err)
	}
	return nil
}
