// ABOUTME: SQLite persistence for pooled sender identities
// ABOUTME: Identities are read-mostly; the selector never mutates them

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// CreateSenderIdentity adds a number to a tenant's pool.
// Returns ErrDuplicateIdentity if the tenant already has that number.
func (s *SQLiteStore) CreateSenderIdentity(ctx context.Context, identity *SenderIdentity) error {
	if len(identity.Capabilities) == 0 {
		return fmt.Errorf("sender identity %s: capabilities must not be empty", identity.PhoneNumber)
	}

	query := `
		INSERT INTO sender_identities (
			id, tenant_id, phone_number, country_code, capabilities,
			is_default, status, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	capsJSON, err := json.Marshal(identity.Capabilities)
	if err != nil {
		return fmt.Errorf("marshaling capabilities: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query,
		identity.ID,
		identity.TenantID,
		identity.PhoneNumber,
		identity.CountryCode,
		string(capsJSON),
		identity.IsDefault,
		identity.Status,
		identity.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateIdentity
		}
		return fmt.Errorf("inserting sender identity: %w", err)
	}

	s.logger.Debug("created sender identity",
		"id", identity.ID,
		"number", identity.PhoneNumber,
		"country", identity.CountryCode,
	)
	return nil
}

// GetSenderIdentityByPhone retrieves the pooled identity holding a number,
// unscoped, for routing inbound webhooks to the owning tenant. Returns
// ErrNotFound when no pool carries it.
func (s *SQLiteStore) GetSenderIdentityByPhone(ctx context.Context, phone string) (*SenderIdentity, error) {
	if phone == "" {
		return nil, ErrNotFound
	}
	query := `
		SELECT id, tenant_id, phone_number, country_code, capabilities,
		       is_default, status, created_at
		FROM sender_identities
		WHERE phone_number = ?
		ORDER BY created_at, id
		LIMIT 1
	`

	var identity SenderIdentity
	var capsJSON sql.NullString
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, phone).Scan(
		&identity.ID,
		&identity.TenantID,
		&identity.PhoneNumber,
		&identity.CountryCode,
		&capsJSON,
		&identity.IsDefault,
		&identity.Status,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying sender identity by phone: %w", err)
	}

	if capsJSON.Valid {
		_ = json.Unmarshal([]byte(capsJSON.String), &identity.Capabilities)
	}
	identity.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, err
	}

	return &identity, nil
}

// ListSenderIdentities retrieves the pool visible to the caller in stable
// listing order (creation order, ties broken by id). The selector relies on
// this order for its final fallback step.
func (s *SQLiteStore) ListSenderIdentities(ctx context.Context, caller tenancy.Caller) ([]*SenderIdentity, error) {
	query := `
		SELECT id, tenant_id, phone_number, country_code, capabilities,
		       is_default, status, created_at
		FROM sender_identities
		WHERE 1=1
	`
	args := []any{}

	if clause, params := tenancy.ScopeFilter(caller); clause != "" {
		query += " AND " + clause
		args = append(args, params...)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sender identities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var identities []*SenderIdentity
	for rows.Next() {
		var identity SenderIdentity
		var capsJSON sql.NullString
		var createdAtStr string

		if err := rows.Scan(
			&identity.ID,
			&identity.TenantID,
			&identity.PhoneNumber,
			&identity.CountryCode,
			&capsJSON,
			&identity.IsDefault,
			&identity.Status,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning sender identity row: %w", err)
		}

		if capsJSON.Valid {
			_ = json.Unmarshal([]byte(capsJSON.String), &identity.Capabilities)
		}

		identity.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, err
		}

		identities = append(identities, &identity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sender identity rows: %w", err)
	}

	return identities, nil
}
