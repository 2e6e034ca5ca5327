// ABOUTME: Tests for gateway construction, routing, health, and shutdown
// ABOUTME: Provides the shared in-memory fixture other gateway tests build on

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/95percent-ai/butt-dial/internal/admin"
	"github.com/95percent-ai/butt-dial/internal/auth"
	"github.com/95percent-ai/butt-dial/internal/config"
	"github.com/95percent-ai/butt-dial/internal/store"
	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// superCaller is the context every seeding helper provisions under.
var superCaller = tenancy.Caller{Role: tenancy.RoleSuperAdmin}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

// testConfig is a minimal simulated-mode config on an in-memory store.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Database.Path = ":memory:"
	cfg.Providers.Mode = config.ModeSimulated
	cfg.Throttle.AgentPerMinute = 100
	cfg.Throttle.AgentPerHour = 1000
	return cfg
}

// newTestGateway builds a gateway in simulated mode for handler tests.
func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	return newTestGatewayWithConfig(t, testConfig())
}

func newTestGatewayWithConfig(t *testing.T, cfg *config.Config) *Gateway {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, gw.Shutdown(context.Background()))
	})
	return gw
}

// seedAgent onboards a tenant with one agent carrying the given
// capabilities and dedicated number. The tenant name keys uniqueness.
func seedAgent(t *testing.T, gw *Gateway, tenantName, number string, caps []string) *store.Agent {
	t.Helper()
	res, err := gw.admin.Onboard(context.Background(), superCaller, admin.OnboardRequest{
		TenantName:       tenantName,
		AgentDisplayName: tenantName + " agent",
		PhoneNumber:      number,
		Capabilities:     caps,
	})
	require.NoError(t, err)
	return res.Agent
}

// seedIdentity adds a pool number to the tenant.
func seedIdentity(t *testing.T, gw *Gateway, tenantID, number string, caps []string, isDefault bool) *store.SenderIdentity {
	t.Helper()
	identity, err := gw.admin.AddSenderIdentity(context.Background(), superCaller, admin.AddIdentityRequest{
		TenantID:     tenantID,
		PhoneNumber:  number,
		Capabilities: caps,
		IsDefault:    isDefault,
	})
	require.NoError(t, err)
	return identity
}

// asAgent attaches an agent auth context, as the middleware would after
// verifying a bearer token.
func asAgent(r *http.Request, a *store.Agent) *http.Request {
	return r.WithContext(auth.WithAuth(r.Context(), &auth.AuthContext{
		AgentID:  a.ID,
		TenantID: a.TenantID,
		Role:     tenancy.RoleAgent,
	}))
}

// asAdmin attaches a tenant-admin auth context scoped to tenantID, or a
// super-admin context when tenantID is empty.
func asAdmin(r *http.Request, tenantID string) *http.Request {
	role := tenancy.RoleTenantAdmin
	if tenantID == "" {
		role = tenancy.RoleSuperAdmin
	}
	return r.WithContext(auth.WithAuth(r.Context(), &auth.AuthContext{
		TenantID: tenantID,
		Role:     role,
	}))
}

func TestNew_SimulatedMode(t *testing.T) {
	gw := newTestGateway(t)

	assert.Equal(t, "simulated", string(gw.providers.Variant()))
	_, err := gw.providers.Messenger(store.ChannelSMS)
	assert.NoError(t, err)
	_, err = gw.providers.Caller()
	assert.NoError(t, err)
}

func TestNew_LoadsThrottleOverridesFromStore(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "gateway.db")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	first, err := New(cfg, logger)
	require.NoError(t, err)

	tenant, err := first.admin.CreateTenant(context.Background(), superCaller, "overrides")
	require.NoError(t, err)
	res, err := first.admin.ProvisionAgent(context.Background(), superCaller, admin.ProvisionAgentRequest{
		TenantID:     tenant.ID,
		DisplayName:  "Throttled",
		MaxPerMinute: 7,
		MaxPerHour:   70,
	})
	require.NoError(t, err)
	require.NoError(t, first.Shutdown(context.Background()))

	// A fresh process must pick the overrides up from the store.
	second, err := New(cfg, logger)
	require.NoError(t, err)
	defer func() { require.NoError(t, second.Shutdown(context.Background())) }()

	assert.Equal(t, 7, second.perMinute.KeyLimit(res.Agent.ID))
	assert.Equal(t, 70, second.perHour.KeyLimit(res.Agent.ID))
}

func TestHandleHealth(t *testing.T) {
	gw := newTestGateway(t)

	rec := httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "simulated", body["mode"])
}

func TestRoutes_APIRequiresBearer(t *testing.T) {
	gw := newTestGateway(t)

	rec := httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutes_AdminEndpointRejectsAgentBearer(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.DemoAdminToken = "demo-super"
	gw := newTestGatewayWithConfig(t, cfg)

	// Onboard through the real router with the demo super-admin bearer.
	body := `{"tenant_name": "acme", "agent_display_name": "Support"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/onboard", jsonBody(body))
	req.Header.Set("Authorization", "Bearer demo-super")
	rec := httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var onboarded struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &onboarded))
	require.NotEmpty(t, onboarded.Token)

	// The minted agent bearer works on the agent surface...
	req = httptest.NewRequest(http.MethodGet, "/api/v1/limits", nil)
	req.Header.Set("Authorization", "Bearer "+onboarded.Token)
	rec = httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// ...and is rejected on the admin surface.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/agents", nil)
	req.Header.Set("Authorization", "Bearer "+onboarded.Token)
	rec = httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRoutes_AgentLifecycleRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.DemoAdminToken = "demo-super"
	gw := newTestGatewayWithConfig(t, cfg)
	mux := gw.routes()

	body := `{"tenant_name": "acme", "agent_display_name": "Courier",
		"phone_number": "+15550001111", "capabilities": ["sms"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/onboard", jsonBody(body))
	req.Header.Set("Authorization", "Bearer demo-super")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var onboarded struct {
		Agent struct {
			ID string `json:"id"`
		} `json:"agent"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &onboarded))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/messages",
			jsonBody(`{"to": "+15552223333", "body": "hello", "channel": "sms"}`))
		req.Header.Set("Authorization", "Bearer "+onboarded.Token)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, send().Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/admin/agents/"+onboarded.Agent.ID, nil)
	req.Header.Set("Authorization", "Bearer demo-super")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, send().Code, "revoked credential must stop working")
}

func TestRoutes_DocsServedWithoutAuth(t *testing.T) {
	gw := newTestGateway(t)

	for _, path := range []string{"/openapi.json", "/docs", "/docs/integration"} {
		rec := httptest.NewRecorder()
		gw.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, "GET %s", path)
	}
}

func TestShutdown_WithoutRun(t *testing.T) {
	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(cfg, logger)
	require.NoError(t, err)

	assert.NoError(t, gw.Shutdown(context.Background()))
}
