// ABOUTME: Tenant onboarding and sender identity registration
// ABOUTME: Implements tenant creation and the one-call tenant+agent bootstrap

package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/95percent-ai/butt-dial/internal/phone"
	"github.com/95percent-ai/butt-dial/internal/store"
	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

const maxTenantNameLen = 64

// Sender identities are phone numbers, so only number-backed channels
// may appear in their capability sets.
var numberChannels = map[string]bool{
	store.ChannelSMS:      true,
	store.ChannelWhatsApp: true,
	store.ChannelVoice:    true,
}

// CreateTenant creates a new isolation boundary. Super-admin only.
func (s *Service) CreateTenant(ctx context.Context, caller tenancy.Caller, name string) (*store.Tenant, error) {
	if caller.Role != tenancy.RoleSuperAdmin {
		return nil, fmt.Errorf("%w: tenant creation requires super-admin", ErrForbidden)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidArgument)
	}
	if len(name) > maxTenantNameLen {
		return nil, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidArgument, maxTenantNameLen)
	}

	tenant := &store.Tenant{
		ID:        generateID("tenant"),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateTenant(ctx, tenant); err != nil {
		if errors.Is(err, store.ErrDuplicateTenant) {
			return nil, fmt.Errorf("tenant %q: %w", name, store.ErrDuplicateTenant)
		}
		return nil, fmt.Errorf("creating tenant: %w", err)
	}

	s.logger.Info("created tenant", "tenant_id", tenant.ID, "name", name)
	return tenant, nil
}

// AddIdentityRequest describes a pooled sender number
type AddIdentityRequest struct {
	TenantID     string
	PhoneNumber  string
	Capabilities []string
	IsDefault    bool
}

// AddSenderIdentity registers a number into the tenant's outbound pool.
// The country code is derived from the number's dialing prefix.
func (s *Service) AddSenderIdentity(ctx context.Context, caller tenancy.Caller, req AddIdentityRequest) (*store.SenderIdentity, error) {
	if req.TenantID == "" {
		req.TenantID = caller.TenantID
	}
	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id required", ErrInvalidArgument)
	}
	if err := tenancy.AssertOwned(req.TenantID, caller); err != nil {
		return nil, err
	}

	number := phone.Normalize(req.PhoneNumber)
	if !phone.IsE164(number) {
		return nil, fmt.Errorf("%w: phone_number %q is not a valid E.164 number", ErrInvalidArgument, req.PhoneNumber)
	}

	capabilities := req.Capabilities
	if len(capabilities) == 0 {
		capabilities = []string{store.ChannelSMS}
	}
	for _, c := range capabilities {
		if !numberChannels[c] {
			return nil, fmt.Errorf("%w: channel %q cannot be served by a phone number", ErrInvalidArgument, c)
		}
	}

	if _, err := s.store.GetTenant(ctx, req.TenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("tenant %s: %w", req.TenantID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("looking up tenant: %w", err)
	}

	identity := &store.SenderIdentity{
		ID:           generateID("num"),
		TenantID:     req.TenantID,
		PhoneNumber:  number,
		CountryCode:  phone.CountryForNumber(number),
		Capabilities: capabilities,
		IsDefault:    req.IsDefault,
		Status:       store.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateSenderIdentity(ctx, identity); err != nil {
		if errors.Is(err, store.ErrDuplicateIdentity) {
			return nil, fmt.Errorf("number %s: %w", number, store.ErrDuplicateIdentity)
		}
		return nil, fmt.Errorf("creating sender identity: %w", err)
	}

	s.logger.Info("added sender identity",
		"tenant_id", req.TenantID,
		"number", number,
		"country", identity.CountryCode)
	return identity, nil
}

// ListSenderIdentities returns the pool numbers visible to the caller
func (s *Service) ListSenderIdentities(ctx context.Context, caller tenancy.Caller) ([]*store.SenderIdentity, error) {
	return s.store.ListSenderIdentities(ctx, caller)
}

// OnboardRequest bootstraps a tenant with its first agent
type OnboardRequest struct {
	TenantName       string
	AgentDisplayName string
	PhoneNumber      string
	Capabilities     []string
	SystemPrompt     string
	Greeting         string
}

// OnboardResult carries everything a fresh tenant needs to start sending
type OnboardResult struct {
	Tenant    *store.Tenant
	Agent     *store.Agent
	Token     *store.Token
	Plaintext string
}

// Onboard creates a tenant and its first agent in one call. Super-admin
// only. If agent creation fails the tenant still exists; the caller can
// retry with ProvisionAgent.
func (s *Service) Onboard(ctx context.Context, caller tenancy.Caller, req OnboardRequest) (*OnboardResult, error) {
	if strings.TrimSpace(req.AgentDisplayName) == "" {
		return nil, fmt.Errorf("%w: agent_display_name required", ErrInvalidArgument)
	}

	tenant, err := s.CreateTenant(ctx, caller, req.TenantName)
	if err != nil {
		return nil, err
	}

	provisioned, err := s.ProvisionAgent(ctx, caller, ProvisionAgentRequest{
		TenantID:     tenant.ID,
		DisplayName:  req.AgentDisplayName,
		PhoneNumber:  req.PhoneNumber,
		Capabilities: req.Capabilities,
		SystemPrompt: req.SystemPrompt,
		Greeting:     req.Greeting,
	})
	if err != nil {
		return nil, fmt.Errorf("tenant %s created, agent provisioning failed: %w", tenant.ID, err)
	}

	return &OnboardResult{
		Tenant:    tenant,
		Agent:     provisioned.Agent,
		Token:     provisioned.Token,
		Plaintext: provisioned.Plaintext,
	}, nil
}
