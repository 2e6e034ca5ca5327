// ABOUTME: Provisioning service for agents and their API tokens
// ABOUTME: Implements agent create, deprovision, token rotation, and limit updates

package admin

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/95percent-ai/butt-dial/internal/auth"
	"github.com/95percent-ai/butt-dial/internal/phone"
	"github.com/95percent-ai/butt-dial/internal/store"
	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// ErrInvalidArgument marks a request rejected before it touches the store
var ErrInvalidArgument = errors.New("invalid argument")

// ErrForbidden marks a request the caller's role does not permit
var ErrForbidden = errors.New("forbidden")

// DefaultTier is assigned to agents provisioned without an explicit tier
const DefaultTier = "standard"

// Store defines the persistence operations provisioning needs.
// *store.SQLiteStore satisfies it.
type Store interface {
	CreateTenant(ctx context.Context, tenant *store.Tenant) error
	GetTenant(ctx context.Context, id string) (*store.Tenant, error)

	CreateAgent(ctx context.Context, agent *store.Agent) error
	GetAgent(ctx context.Context, id string) (*store.Agent, error)
	ListAgents(ctx context.Context, caller tenancy.Caller) ([]*store.Agent, error)
	UpdateAgentStatus(ctx context.Context, id, status string) error
	SetAgentLimits(ctx context.Context, id string, perMinute, perHour int) error
	SetAgentTier(ctx context.Context, id, tier string) error

	CreateToken(ctx context.Context, token *store.Token) error
	ListAgentTokens(ctx context.Context, agentID string) ([]*store.Token, error)
	RevokeAgentTokens(ctx context.Context, agentID string) error

	CreateSenderIdentity(ctx context.Context, identity *store.SenderIdentity) error
	ListSenderIdentities(ctx context.Context, caller tenancy.Caller) ([]*store.SenderIdentity, error)
}

// Service implements tenant and agent provisioning
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a provisioning service
func NewService(s Store, logger *slog.Logger) *Service {
	return &Service{
		store:  s,
		logger: logger.With("component", "admin"),
	}
}

// ProvisionAgentRequest describes a new agent
type ProvisionAgentRequest struct {
	TenantID     string
	DisplayName  string
	PhoneNumber  string // optional dedicated number
	SystemPrompt string
	Greeting     string
	Capabilities []string
	Tier         string
	MaxPerMinute int
	MaxPerHour   int
	TokenLabel   string
}

// ProvisionResult carries the created agent and its first credential.
// Plaintext is shown once and never stored.
type ProvisionResult struct {
	Agent     *store.Agent
	Token     *store.Token
	Plaintext string
}

// TokenResult carries a freshly minted credential
type TokenResult struct {
	Token     *store.Token
	Plaintext string
}

var knownChannels = map[string]bool{
	store.ChannelSMS:      true,
	store.ChannelWhatsApp: true,
	store.ChannelVoice:    true,
	store.ChannelEmail:    true,
	store.ChannelLine:     true,
	store.ChannelMatrix:   true,
}

// ProvisionAgent creates an agent under a tenant and mints its first token.
// Tenant admins may only provision into their own tenant.
func (s *Service) ProvisionAgent(ctx context.Context, caller tenancy.Caller, req ProvisionAgentRequest) (*ProvisionResult, error) {
	if req.TenantID == "" {
		req.TenantID = caller.TenantID
	}
	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id required", ErrInvalidArgument)
	}
	if err := tenancy.AssertOwned(req.TenantID, caller); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, fmt.Errorf("%w: display_name required", ErrInvalidArgument)
	}
	if err := validateCapabilities(req.Capabilities); err != nil {
		return nil, err
	}
	if req.MaxPerMinute < 0 || req.MaxPerHour < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", ErrInvalidArgument)
	}

	// Dedicated numbers are stored normalized
	var number string
	if req.PhoneNumber != "" {
		number = phone.Normalize(req.PhoneNumber)
		if !phone.IsE164(number) {
			return nil, fmt.Errorf("%w: phone_number %q is not a valid E.164 number", ErrInvalidArgument, req.PhoneNumber)
		}
	}

	// Verify the tenant exists before creating anything under it
	if _, err := s.store.GetTenant(ctx, req.TenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("tenant %s: %w", req.TenantID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("looking up tenant: %w", err)
	}

	capabilities := req.Capabilities
	if len(capabilities) == 0 {
		capabilities = []string{store.ChannelSMS}
	}
	tier := req.Tier
	if tier == "" {
		tier = DefaultTier
	}

	agent := &store.Agent{
		ID:           generateID("agent"),
		TenantID:     req.TenantID,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PhoneNumber:  number,
		Status:       store.StatusActive,
		SystemPrompt: req.SystemPrompt,
		Greeting:     req.Greeting,
		Capabilities: capabilities,
		Tier:         tier,
		MaxPerMinute: req.MaxPerMinute,
		MaxPerHour:   req.MaxPerHour,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	tokenResult, err := s.mintAndStore(ctx, agent, req.TokenLabel)
	if err != nil {
		return nil, err
	}

	s.logger.Info("provisioned agent",
		"agent_id", agent.ID,
		"tenant_id", agent.TenantID,
		"capabilities", strings.Join(capabilities, ","))

	return &ProvisionResult{
		Agent:     agent,
		Token:     tokenResult.Token,
		Plaintext: tokenResult.Plaintext,
	}, nil
}

// DeprovisionAgent revokes all of an agent's tokens and marks it inactive.
// Records the agent owns are kept; nothing is deleted.
func (s *Service) DeprovisionAgent(ctx context.Context, caller tenancy.Caller, agentID string) error {
	agent, err := s.loadOwnedAgent(ctx, caller, agentID)
	if err != nil {
		return err
	}

	if err := s.store.RevokeAgentTokens(ctx, agent.ID); err != nil {
		return fmt.Errorf("revoking tokens: %w", err)
	}
	if err := s.store.UpdateAgentStatus(ctx, agent.ID, store.StatusInactive); err != nil {
		return fmt.Errorf("deactivating agent: %w", err)
	}

	s.logger.Info("deprovisioned agent", "agent_id", agent.ID, "tenant_id", agent.TenantID)
	return nil
}

// SetAgentStatus activates or deactivates an agent
func (s *Service) SetAgentStatus(ctx context.Context, caller tenancy.Caller, agentID, status string) error {
	if status != store.StatusActive && status != store.StatusInactive {
		return fmt.Errorf("%w: status must be %q or %q", ErrInvalidArgument, store.StatusActive, store.StatusInactive)
	}

	agent, err := s.loadOwnedAgent(ctx, caller, agentID)
	if err != nil {
		return err
	}
	return s.store.UpdateAgentStatus(ctx, agent.ID, status)
}

// RegenerateToken revokes every existing token for the agent and mints a
// fresh one. The old plaintext stops working immediately.
func (s *Service) RegenerateToken(ctx context.Context, caller tenancy.Caller, agentID, label string) (*TokenResult, error) {
	agent, err := s.loadOwnedAgent(ctx, caller, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != store.StatusActive {
		return nil, fmt.Errorf("%w: agent status is %s, must be active", ErrInvalidArgument, agent.Status)
	}

	if err := s.store.RevokeAgentTokens(ctx, agent.ID); err != nil {
		return nil, fmt.Errorf("revoking tokens: %w", err)
	}

	result, err := s.mintAndStore(ctx, agent, label)
	if err != nil {
		return nil, err
	}

	s.logger.Info("regenerated agent token", "agent_id", agent.ID, "token_id", result.Token.ID)
	return result, nil
}

// ListTokens returns token metadata for an agent. Hashes are blanked;
// nothing returned here can authenticate.
func (s *Service) ListTokens(ctx context.Context, caller tenancy.Caller, agentID string) ([]*store.Token, error) {
	agent, err := s.loadOwnedAgent(ctx, caller, agentID)
	if err != nil {
		return nil, err
	}

	tokens, err := s.store.ListAgentTokens(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	for _, tok := range tokens {
		tok.TokenHash = ""
	}
	return tokens, nil
}

// UpdateAgentLimits sets an agent's throttle overrides. Zero restores the
// tier default.
func (s *Service) UpdateAgentLimits(ctx context.Context, caller tenancy.Caller, agentID string, perMinute, perHour int) error {
	if perMinute < 0 || perHour < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidArgument)
	}

	agent, err := s.loadOwnedAgent(ctx, caller, agentID)
	if err != nil {
		return err
	}

	if err := s.store.SetAgentLimits(ctx, agent.ID, perMinute, perHour); err != nil {
		return fmt.Errorf("updating limits: %w", err)
	}

	s.logger.Info("updated agent limits",
		"agent_id", agent.ID,
		"per_minute", perMinute,
		"per_hour", perHour)
	return nil
}

// SetAgentTier moves an agent to a different billing tier
func (s *Service) SetAgentTier(ctx context.Context, caller tenancy.Caller, agentID, tier string) error {
	if strings.TrimSpace(tier) == "" {
		return fmt.Errorf("%w: tier required", ErrInvalidArgument)
	}

	agent, err := s.loadOwnedAgent(ctx, caller, agentID)
	if err != nil {
		return err
	}

	if err := s.store.SetAgentTier(ctx, agent.ID, tier); err != nil {
		return fmt.Errorf("updating tier: %w", err)
	}

	s.logger.Info("updated agent tier", "agent_id", agent.ID, "tier", tier)
	return nil
}

// ListAgents returns the agents visible to the caller
func (s *Service) ListAgents(ctx context.Context, caller tenancy.Caller) ([]*store.Agent, error) {
	return s.store.ListAgents(ctx, caller)
}

// loadOwnedAgent fetches an agent and checks the caller may act on it
func (s *Service) loadOwnedAgent(ctx context.Context, caller tenancy.Caller, agentID string) (*store.Agent, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent_id required", ErrInvalidArgument)
	}

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("agent %s: %w", agentID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("looking up agent: %w", err)
	}
	if err := tenancy.AssertOwned(agent.TenantID, caller); err != nil {
		return nil, err
	}
	return agent, nil
}

// mintAndStore mints an agent token and persists its hash
func (s *Service) mintAndStore(ctx context.Context, agent *store.Agent, label string) (*TokenResult, error) {
	if label == "" {
		label = "default"
	}

	plaintext, token, err := auth.MintAgentToken(agent.ID, agent.TenantID, label)
	if err != nil {
		return nil, fmt.Errorf("minting token: %w", err)
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}
	return &TokenResult{Token: token, Plaintext: plaintext}, nil
}

func validateCapabilities(capabilities []string) error {
	for _, c := range capabilities {
		if !knownChannels[c] {
			return fmt.Errorf("%w: unknown channel %q", ErrInvalidArgument, c)
		}
	}
	return nil
}

// generateID creates a new unique entity ID
func generateID(prefix string) string {
	// Type prefix + timestamp + random suffix
	timestamp := time.Now().UnixMilli()
	return prefix + "-" + formatBase36(timestamp) + randomBase36(4)
}

// formatBase36 converts an int64 to base36 string
func formatBase36(n int64) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "0"
	}
	result := ""
	for n > 0 {
		result = string(digits[n%36]) + result
		n /= 36
	}
	return result
}

// randomBase36 returns n random base36 characters
func randomBase36(n int) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = digits[int(b[i])%36]
	}
	return string(b)
}
