// ABOUTME: Tests for agent provisioning and token lifecycle
// ABOUTME: Covers provision, deprovision, token rotation, and limit updates

package admin

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/95percent-ai/butt-dial/internal/auth"
	"github.com/95percent-ai/butt-dial/internal/store"
	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

func TestProvisionAgent_Success(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")
	ctx := context.Background()

	result, err := svc.ProvisionAgent(ctx, tenantAdmin("tenant-1"), ProvisionAgentRequest{
		TenantID:     "tenant-1",
		DisplayName:  "Support Bot",
		Capabilities: []string{store.ChannelSMS, store.ChannelVoice},
		SystemPrompt: "You answer support calls.",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Agent.ID, "agent-"))
	assert.Equal(t, "tenant-1", result.Agent.TenantID)
	assert.Equal(t, "Support Bot", result.Agent.DisplayName)
	assert.Equal(t, store.StatusActive, result.Agent.Status)
	assert.Equal(t, DefaultTier, result.Agent.Tier)
	assert.Equal(t, []string{store.ChannelSMS, store.ChannelVoice}, result.Agent.Capabilities)

	// Plaintext is a usable credential
	assert.True(t, strings.HasPrefix(result.Plaintext, "bd_"))
	tok, err := auth.VerifyAgentToken(ctx, s, result.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, result.Agent.ID, tok.AgentID)

	// Agent is persisted
	stored, err := s.GetAgent(ctx, result.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "You answer support calls.", stored.SystemPrompt)
}

func TestProvisionAgent_DefaultsTenantFromCaller(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")

	result, err := svc.ProvisionAgent(context.Background(), tenantAdmin("tenant-1"), ProvisionAgentRequest{
		DisplayName: "Implicit Tenant",
	})
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", result.Agent.TenantID)
}

func TestProvisionAgent_DefaultCapabilities(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")

	result, err := svc.ProvisionAgent(context.Background(), tenantAdmin("tenant-1"), ProvisionAgentRequest{
		DisplayName: "Bare Bot",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{store.ChannelSMS}, result.Agent.Capabilities)
}

func TestProvisionAgent_CrossTenantRejected(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")
	seedTenant(t, s, "tenant-2", "globex")

	_, err := svc.ProvisionAgent(context.Background(), tenantAdmin("tenant-1"), ProvisionAgentRequest{
		TenantID:    "tenant-2",
		DisplayName: "Sneaky Bot",
	})
	assert.ErrorIs(t, err, tenancy.ErrTenantMismatch)
}

func TestProvisionAgent_SuperAdminAnyTenant(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-2", "globex")

	result, err := svc.ProvisionAgent(context.Background(), superAdmin, ProvisionAgentRequest{
		TenantID:    "tenant-2",
		DisplayName: "Placed Anywhere",
	})
	require.NoError(t, err)
	assert.Equal(t, "tenant-2", result.Agent.TenantID)
}

func TestProvisionAgent_MissingDisplayName(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")

	_, err := svc.ProvisionAgent(context.Background(), tenantAdmin("tenant-1"), ProvisionAgentRequest{
		DisplayName: "   ",
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "display_name")
}

func TestProvisionAgent_UnknownCapability(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")

	_, err := svc.ProvisionAgent(context.Background(), tenantAdmin("tenant-1"), ProvisionAgentRequest{
		DisplayName:  "Bot",
		Capabilities: []string{"carrier-pigeon"},
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestProvisionAgent_NormalizesDedicatedNumber(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")

	result, err := svc.ProvisionAgent(context.Background(), tenantAdmin("tenant-1"), ProvisionAgentRequest{
		DisplayName: "Bot",
		PhoneNumber: "+1 (415) 555-0100",
	})
	require.NoError(t, err)
	assert.Equal(t, "+14155550100", result.Agent.PhoneNumber)
}

func TestProvisionAgent_InvalidNumber(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")

	_, err := svc.ProvisionAgent(context.Background(), tenantAdmin("tenant-1"), ProvisionAgentRequest{
		DisplayName: "Bot",
		PhoneNumber: "not-a-number",
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestProvisionAgent_TenantNotFound(t *testing.T) {
	svc, _ := setupAdminService(t)

	_, err := svc.ProvisionAgent(context.Background(), superAdmin, ProvisionAgentRequest{
		TenantID:    "tenant-ghost",
		DisplayName: "Orphan Bot",
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeprovisionAgent_RevokesAndDeactivates(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")
	ctx := context.Background()

	result, err := svc.ProvisionAgent(ctx, tenantAdmin("tenant-1"), ProvisionAgentRequest{
		DisplayName: "Short Lived",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeprovisionAgent(ctx, tenantAdmin("tenant-1"), result.Agent.ID))

	agent, err := s.GetAgent(ctx, result.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusInactive, agent.Status)

	// The minted credential no longer authenticates
	_, err = auth.VerifyAgentToken(ctx, s, result.Plaintext)
	assert.ErrorIs(t, err, auth.ErrRevokedToken)
}

func TestDeprovisionAgent_CrossTenantRejected(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")
	seedTenant(t, s, "tenant-2", "globex")
	ctx := context.Background()

	result, err := svc.ProvisionAgent(ctx, superAdmin, ProvisionAgentRequest{
		TenantID:    "tenant-2",
		DisplayName: "Protected Bot",
	})
	require.NoError(t, err)

	err = svc.DeprovisionAgent(ctx, tenantAdmin("tenant-1"), result.Agent.ID)
	assert.ErrorIs(t, err, tenancy.ErrTenantMismatch)

	// Nothing changed
	agent, err := s.GetAgent(ctx, result.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, agent.Status)
}

func TestDeprovisionAgent_NotFound(t *testing.T) {
	svc, _ := setupAdminService(t)

	err := svc.DeprovisionAgent(context.Background(), superAdmin, "agent-ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegenerateToken_RotatesCredential(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")
	ctx := context.Background()

	result, err := svc.ProvisionAgent(ctx, tenantAdmin("tenant-1"), ProvisionAgentRequest{
		DisplayName: "Rotating Bot",
	})
	require.NoError(t, err)

	rotated, err := svc.RegenerateToken(ctx, tenantAdmin("tenant-1"), result.Agent.ID, "rotated")
	require.NoError(t, err)
	assert.NotEqual(t, result.Plaintext, rotated.Plaintext)
	assert.Equal(t, "rotated", rotated.Token.Label)

	// Old credential is dead, new one works
	_, err = auth.VerifyAgentToken(ctx, s, result.Plaintext)
	assert.ErrorIs(t, err, auth.ErrRevokedToken)

	tok, err := auth.VerifyAgentToken(ctx, s, rotated.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, result.Agent.ID, tok.AgentID)
}

func TestRegenerateToken_InactiveAgent(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")
	ctx := context.Background()

	result, err := svc.ProvisionAgent(ctx, tenantAdmin("tenant-1"), ProvisionAgentRequest{
		DisplayName: "Retired Bot",
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeprovisionAgent(ctx, tenantAdmin("tenant-1"), result.Agent.ID))

	_, err = svc.RegenerateToken(ctx, tenantAdmin("tenant-1"), result.Agent.ID, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "must be active")
}

func TestListTokens_BlanksHashes(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")
	ctx := context.Background()

	result, err := svc.ProvisionAgent(ctx, tenantAdmin("tenant-1"), ProvisionAgentRequest{
		DisplayName: "Audited Bot",
	})
	require.NoError(t, err)

	_, err = svc.RegenerateToken(ctx, tenantAdmin("tenant-1"), result.Agent.ID, "second")
	require.NoError(t, err)

	tokens, err := svc.ListTokens(ctx, tenantAdmin("tenant-1"), result.Agent.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	statuses := map[string]int{}
	for _, tok := range tokens {
		assert.Empty(t, tok.TokenHash)
		statuses[tok.Status]++
	}
	assert.Equal(t, 1, statuses[store.TokenActive])
	assert.Equal(t, 1, statuses[store.TokenRevoked])
}

func TestUpdateAgentLimits(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")
	ctx := context.Background()

	result, err := svc.ProvisionAgent(ctx, tenantAdmin("tenant-1"), ProvisionAgentRequest{
		DisplayName: "Throttled Bot",
	})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateAgentLimits(ctx, tenantAdmin("tenant-1"), result.Agent.ID, 5, 50))

	agent, err := s.GetAgent(ctx, result.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, agent.MaxPerMinute)
	assert.Equal(t, 50, agent.MaxPerHour)
}

func TestUpdateAgentLimits_NegativeRejected(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")

	err := svc.UpdateAgentLimits(context.Background(), tenantAdmin("tenant-1"), "agent-any", -1, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSetAgentStatus_Reactivates(t *testing.T) {
	svc, s := setupAdminService(t)
	seedTenant(t, s, "tenant-1", "acme")
	ctx := context.Background()

	result, err := svc.ProvisionAgent(ctx, tenantAdmin("tenant-1"), ProvisionAgentRequest{
		DisplayName: "Paused Bot",
	})
	require.NoError(t, err)

	require.NoError(t, svc.SetAgentStatus(ctx, tenantAdmin("tenant-1"), result.Agent.ID, store.StatusInactive))
	require.NoError(t, svc.SetAgentStatus(ctx, tenantAdmin("tenant-1"), result.Agent.ID, store.StatusActive))

	agent, err := s.GetAgent(ctx, result.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, agent.Status)
}

func TestSetAgentStatus_UnknownStatus(t *testing.T) {
	svc, _ := setupAdminService(t)

	err := svc.SetAgentStatus(context.Background(), superAdmin, "agent-any", "hibernating")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGenerateID_UniqueAndPrefixed(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := generateID("agent")
		assert.True(t, strings.HasPrefix(id, "agent-"))
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
