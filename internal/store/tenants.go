// ABOUTME: SQLite persistence for tenants
// ABOUTME: Tenants are the isolation boundary owning every other record

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateTenant creates a new tenant.
// Returns ErrDuplicateTenant if the name is already taken.
func (s *SQLiteStore) CreateTenant(ctx context.Context, tenant *Tenant) error {
	query := `
		INSERT INTO tenants (id, name, created_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateTenant
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}

	s.logger.Debug("created tenant", "id", tenant.ID, "name", tenant.Name)
	return nil
}

// GetTenant retrieves a tenant by ID.
// Returns ErrNotFound if the tenant doesn't exist.
func (s *SQLiteStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return s.getTenant(ctx, "id = ?", id)
}

// GetTenantByName retrieves a tenant by its unique name.
// Returns ErrNotFound if no tenant has that name.
func (s *SQLiteStore) GetTenantByName(ctx context.Context, name string) (*Tenant, error) {
	return s.getTenant(ctx, "name = ?", name)
}

func (s *SQLiteStore) getTenant(ctx context.Context, where string, arg any) (*Tenant, error) {
	query := `SELECT id, name, created_at FROM tenants WHERE ` + where

	var tenant Tenant
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&tenant.ID,
		&tenant.Name,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying tenant: %w", err)
	}

	tenant.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, err
	}

	return &tenant, nil
}
