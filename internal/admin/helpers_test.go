// ABOUTME: Shared helpers for admin service tests
// ABOUTME: Provides store setup, seeded tenants, and caller fixtures

package admin

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/95percent-ai/butt-dial/internal/store"
	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

var superAdmin = tenancy.Caller{Role: tenancy.RoleSuperAdmin}

func tenantAdmin(tenantID string) tenancy.Caller {
	return tenancy.Caller{TenantID: tenantID, Role: tenancy.RoleTenantAdmin}
}

func setupAdminService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewService(s, testLogger()), s
}

func seedTenant(t *testing.T, s *store.SQLiteStore, id, name string) {
	t.Helper()
	err := s.CreateTenant(context.Background(), &store.Tenant{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}
