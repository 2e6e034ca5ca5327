// ABOUTME: Tests for the admin provisioning and management handlers
// ABOUTME: Verifies live limiter application, stream teardown, and scoping

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/95percent-ai/butt-dial/internal/store"
)

func TestHandleCreateTenant(t *testing.T) {
	gw := newTestGateway(t)

	rec := httptest.NewRecorder()
	gw.handleCreateTenant(rec, asAdmin(postJSON("/api/v1/admin/tenants", `{"name": "acme"}`), ""))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tenant tenantJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.Equal(t, "acme", tenant.Name)
	assert.NotEmpty(t, tenant.ID)

	// Names are unique.
	rec = httptest.NewRecorder()
	gw.handleCreateTenant(rec, asAdmin(postJSON("/api/v1/admin/tenants", `{"name": "acme"}`), ""))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleCreateTenant_TenantAdminForbidden(t *testing.T) {
	gw := newTestGateway(t)

	rec := httptest.NewRecorder()
	gw.handleCreateTenant(rec, asAdmin(postJSON("/api/v1/admin/tenants", `{"name": "acme"}`), "tenant-a"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleOnboard(t *testing.T) {
	gw := newTestGateway(t)

	rec := httptest.NewRecorder()
	gw.handleOnboard(rec, asAdmin(postJSON("/api/v1/admin/onboard",
		`{"tenant_name": "acme", "agent_display_name": "Support", "phone_number": "+15551230001", "capabilities": ["sms", "voice"]}`), ""))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res struct {
		Tenant tenantJSON `json:"tenant"`
		Agent  agentJSON  `json:"agent"`
		Token  string     `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "acme", res.Tenant.Name)
	assert.Equal(t, res.Tenant.ID, res.Agent.TenantID)
	assert.Equal(t, "+15551230001", res.Agent.PhoneNumber)
	assert.True(t, strings.HasPrefix(res.Token, "bd_"), "token plaintext should be returned once")
}

func TestHandleProvisionAgent_AppliesLimitsImmediately(t *testing.T) {
	gw := newTestGateway(t)
	seeded := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})

	body := fmt.Sprintf(`{"tenant_id": %q, "display_name": "Bursty", "max_per_minute": 5, "max_per_hour": 50}`, seeded.TenantID)
	rec := httptest.NewRecorder()
	gw.handleProvisionAgent(rec, asAdmin(postJSON("/api/v1/admin/agents", body), ""))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res struct {
		Agent agentJSON `json:"agent"`
		Token string    `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Token)

	assert.Equal(t, 5, gw.perMinute.KeyLimit(res.Agent.ID), "override should bind without restart")
	assert.Equal(t, 50, gw.perHour.KeyLimit(res.Agent.ID))
}

func TestHandleAdminListAgents_TenantScoped(t *testing.T) {
	gw := newTestGateway(t)
	a := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})
	seedAgent(t, gw, "globex", "", []string{store.ChannelSMS})

	rec := httptest.NewRecorder()
	gw.handleAdminListAgents(rec, asAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/admin/agents", nil), a.TenantID))

	require.Equal(t, http.StatusOK, rec.Code)
	var agents []agentJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agents))
	require.Len(t, agents, 1, "tenant admins must not see other tenants")
	assert.Equal(t, a.ID, agents[0].ID)

	rec = httptest.NewRecorder()
	gw.handleAdminListAgents(rec, asAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/admin/agents", nil), ""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agents))
	assert.Len(t, agents, 2, "super-admin sees everything")
}

func TestHandleSetAgentLimits_UpdatesLiveLimiters(t *testing.T) {
	gw := newTestGateway(t)
	agent := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})

	req := asAdmin(postJSON("/api/v1/admin/agents/x/limits", `{"per_minute": 3, "per_hour": 30}`), agent.TenantID)
	req.SetPathValue("id", agent.ID)
	rec := httptest.NewRecorder()
	gw.handleSetAgentLimits(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 3, gw.perMinute.KeyLimit(agent.ID))
	assert.Equal(t, 30, gw.perHour.KeyLimit(agent.ID))

	stored, err := gw.store.GetAgent(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.MaxPerMinute)

	// Zero clears the override back to the config default.
	req = asAdmin(postJSON("/api/v1/admin/agents/x/limits", `{"per_minute": 0, "per_hour": 0}`), agent.TenantID)
	req.SetPathValue("id", agent.ID)
	rec = httptest.NewRecorder()
	gw.handleSetAgentLimits(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 100, gw.perMinute.KeyLimit(agent.ID))
}

func TestHandleSetAgentLimits_NegativeRejected(t *testing.T) {
	gw := newTestGateway(t)
	agent := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})

	req := asAdmin(postJSON("/api/v1/admin/agents/x/limits", `{"per_minute": -1}`), agent.TenantID)
	req.SetPathValue("id", agent.ID)
	rec := httptest.NewRecorder()
	gw.handleSetAgentLimits(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSetAgentStatus_ClosesStream(t *testing.T) {
	gw := newTestGateway(t)
	agent := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})
	conn := gw.presence.Register(agent.ID, agent.TenantID)

	req := asAdmin(postJSON("/api/v1/admin/agents/x/status", `{"status": "inactive"}`), agent.TenantID)
	req.SetPathValue("id", agent.ID)
	rec := httptest.NewRecorder()
	gw.handleSetAgentStatus(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := gw.store.GetAgent(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusInactive, stored.Status)

	select {
	case _, open := <-conn.Events():
		assert.False(t, open, "deactivation should close the live stream")
	case <-time.After(time.Second):
		t.Fatal("stream was not closed")
	}
}

func TestHandleSetAgentStatus_InvalidValue(t *testing.T) {
	gw := newTestGateway(t)
	agent := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})

	req := asAdmin(postJSON("/api/v1/admin/agents/x/status", `{"status": "paused"}`), agent.TenantID)
	req.SetPathValue("id", agent.ID)
	rec := httptest.NewRecorder()
	gw.handleSetAgentStatus(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSetAgentTier(t *testing.T) {
	gw := newTestGateway(t)
	agent := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})

	req := asAdmin(postJSON("/api/v1/admin/agents/x/tier", `{"tier": "premium"}`), agent.TenantID)
	req.SetPathValue("id", agent.ID)
	rec := httptest.NewRecorder()
	gw.handleSetAgentTier(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	stored, err := gw.store.GetAgent(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "premium", stored.Tier)

	req = asAdmin(postJSON("/api/v1/admin/agents/x/tier", `{"tier": "  "}`), agent.TenantID)
	req.SetPathValue("id", agent.ID)
	rec = httptest.NewRecorder()
	gw.handleSetAgentTier(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRegenerateToken(t *testing.T) {
	gw := newTestGateway(t)
	agent := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})

	req := asAdmin(postJSON("/api/v1/admin/agents/x/token", `{"label": "rotated"}`), agent.TenantID)
	req.SetPathValue("id", agent.ID)
	rec := httptest.NewRecorder()
	gw.handleRegenerateToken(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res struct {
		TokenID string `json:"token_id"`
		Token   string `json:"token"`
		Label   string `json:"label"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, strings.HasPrefix(res.Token, "bd_"))
	assert.Equal(t, "rotated", res.Label)

	// The onboarding token is revoked; only the fresh one stays active.
	tokens, err := gw.store.ListAgentTokens(context.Background(), agent.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	active := 0
	for _, tok := range tokens {
		if tok.Status == store.TokenActive {
			active++
			assert.Equal(t, res.TokenID, tok.ID)
		}
	}
	assert.Equal(t, 1, active)
}

func TestHandleRegenerateToken_UnknownAgent(t *testing.T) {
	gw := newTestGateway(t)

	req := asAdmin(postJSON("/api/v1/admin/agents/x/token", `{}`), "")
	req.SetPathValue("id", "agent-missing")
	rec := httptest.NewRecorder()
	gw.handleRegenerateToken(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListTokens_OmitsHashes(t *testing.T) {
	gw := newTestGateway(t)
	agent := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})

	req := asAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/admin/agents/x/tokens", nil), agent.TenantID)
	req.SetPathValue("id", agent.ID)
	rec := httptest.NewRecorder()
	gw.handleListTokens(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var tokens []tokenJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	require.Len(t, tokens, 1)
	assert.Equal(t, store.TokenActive, tokens[0].Status)
	assert.NotContains(t, rec.Body.String(), "hash")
}

func TestHandleDeprovisionAgent(t *testing.T) {
	gw := newTestGateway(t)
	agent := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})

	req := asAdmin(httptest.NewRequest(http.MethodDelete, "/api/v1/admin/agents/x", nil), agent.TenantID)
	req.SetPathValue("id", agent.ID)
	rec := httptest.NewRecorder()
	gw.handleDeprovisionAgent(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := gw.store.GetAgent(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusInactive, stored.Status)

	tokens, err := gw.store.ListAgentTokens(context.Background(), agent.ID)
	require.NoError(t, err)
	for _, tok := range tokens {
		assert.Equal(t, store.TokenRevoked, tok.Status)
	}
}

func TestHandleDeprovisionAgent_CrossTenantForbidden(t *testing.T) {
	gw := newTestGateway(t)
	victim := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})
	other := seedAgent(t, gw, "globex", "", []string{store.ChannelSMS})

	req := asAdmin(httptest.NewRequest(http.MethodDelete, "/api/v1/admin/agents/x", nil), other.TenantID)
	req.SetPathValue("id", victim.ID)
	rec := httptest.NewRecorder()
	gw.handleDeprovisionAgent(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	stored, err := gw.store.GetAgent(context.Background(), victim.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, stored.Status, "cross-tenant deprovision must not land")
}

func TestHandleAddIdentity(t *testing.T) {
	gw := newTestGateway(t)
	agent := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})

	body := fmt.Sprintf(`{"tenant_id": %q, "phone_number": "+1 (415) 555-0100", "capabilities": ["sms"], "is_default": true}`, agent.TenantID)
	rec := httptest.NewRecorder()
	gw.handleAddIdentity(rec, asAdmin(postJSON("/api/v1/admin/identities", body), ""))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var identity identityJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	assert.Equal(t, "+14155550100", identity.PhoneNumber, "numbers are stored normalized")
	assert.Equal(t, "US", identity.CountryCode)
	assert.True(t, identity.IsDefault)

	// Same number again conflicts.
	rec = httptest.NewRecorder()
	gw.handleAddIdentity(rec, asAdmin(postJSON("/api/v1/admin/identities", body), ""))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleListIdentities_TenantScoped(t *testing.T) {
	gw := newTestGateway(t)
	a := seedAgent(t, gw, "acme", "", []string{store.ChannelSMS})
	b := seedAgent(t, gw, "globex", "", []string{store.ChannelSMS})
	seedIdentity(t, gw, a.TenantID, "+14155550100", []string{store.ChannelSMS}, true)
	seedIdentity(t, gw, b.TenantID, "+14155550200", []string{store.ChannelSMS}, true)

	rec := httptest.NewRecorder()
	gw.handleListIdentities(rec, asAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/admin/identities", nil), a.TenantID))

	require.Equal(t, http.StatusOK, rec.Code)
	var identities []identityJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identities))
	require.Len(t, identities, 1)
	assert.Equal(t, "+14155550100", identities[0].PhoneNumber)
}
