// Package admin provides tenant and agent provisioning for the gateway.
//
// # Overview
//
// The admin package implements the administrative operations behind the
// /api/v1/admin HTTP surface: onboarding tenants, provisioning agents,
// rotating credentials, and registering sender numbers.
//
// # Operations
//
// Tenant lifecycle:
//
//   - CreateTenant - create an isolation boundary (super-admin)
//   - Onboard - tenant plus first agent plus token in one call (super-admin)
//
// Agent lifecycle:
//
//   - ProvisionAgent - create an agent and mint its first token
//   - DeprovisionAgent - revoke all tokens and mark inactive
//   - SetAgentStatus - reactivate or deactivate
//   - UpdateAgentLimits - per-agent throttle overrides
//
// Credentials:
//
//   - RegenerateToken - revoke everything outstanding, mint fresh
//   - ListTokens - metadata only, hashes blanked
//
// Number pool:
//
//   - AddSenderIdentity - register a pooled outbound number
//   - ListSenderIdentities - numbers visible to the caller
//
// # Tenancy
//
// Every operation takes a tenancy.Caller. Tenant admins are confined to
// their own tenant; super-admins may act anywhere. Cross-tenant requests
// fail with tenancy.ErrTenantMismatch before any write happens.
//
// # Token Handling
//
// Token plaintext appears exactly once, in the ProvisionResult or
// TokenResult returned by the minting call. Only bcrypt hashes are
// persisted, so a lost plaintext means RegenerateToken.
//
// # Usage
//
//	svc := admin.NewService(store, logger)
//	result, err := svc.ProvisionAgent(ctx, caller, admin.ProvisionAgentRequest{
//	    TenantID:    "tenant-abc",
//	    DisplayName: "Support Bot",
//	})
//	// result.Plaintext is the only copy of the credential
package admin
